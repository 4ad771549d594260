package roomname

var moods = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "crimson", "emerald", "purple", "bright", "gentle", "brave", "calm", "swift", "fuzzy",
}

var critters = []string{
	"kitten", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster", "beaver", "narwhal",
	"penguin", "flamingo", "pelican", "sparrow", "toucan", "parrot", "dolphin", "seahorse", "lamb", "mole",
}

var supplies = []string{
	"crayon", "pencil", "brush", "easel", "palette", "sketch", "doodle", "canvas", "chalk", "marker",
	"charcoal", "pastel", "ink", "quill", "stencil", "eraser", "smudge", "scribble", "mural", "fresco",
}
