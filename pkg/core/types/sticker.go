package types

// Sticker is a named illustration shown transiently during a conversation.
type Sticker struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// stickers is the fixed catalog, in the order offered to the model.
var stickers = []Sticker{
	{"WAVING", "https://i.ibb.co/L9YxLqG/sticker-waving.png"},
	{"SCARED", "https://i.ibb.co/k2qgJ7d/sticker-scared.png"},
	{"COOL", "https://i.ibb.co/hYSYvC5/sticker-cool.png"},
	{"SHRUG", "https://i.ibb.co/hYSYvC5/sticker-shrug.png"},
	{"CONFUSED", "https://i.ibb.co/hYSYvC5/sticker-confused.png"},
	{"LOVE", "https://i.ibb.co/hYSYvC5/sticker-love.png"},
	{"SHOCKED", "https://i.ibb.co/hYSYvC5/sticker-shocked.png"},
	{"ANGRY", "https://i.ibb.co/hYSYvC5/sticker-angry.png"},
	{"SAD", "https://i.ibb.co/hYSYvC5/sticker-sad.png"},
	{"NATURE", "https://i.ibb.co/hYSYvC5/sticker-nature.png"},
	{"POINTING", "https://i.ibb.co/hYSYvC5/sticker-pointing.png"},
	{"THINKING", "https://i.ibb.co/hYSYvC5/sticker-thinking.png"},
	{"CELEBRATING", "https://i.ibb.co/hYSYvC5/sticker-celebrating.png"},
	{"SIGN", "https://i.ibb.co/hYSYvC5/sticker-sign.png"},
	{"WORKING", "https://i.ibb.co/hYSYvC5/sticker-working.png"},
	{"READING", "https://i.ibb.co/hYSYvC5/sticker-reading.png"},
	{"LISTENING", "https://i.ibb.co/hYSYvC5/sticker-listening.png"},
	{"IDEA", "https://i.ibb.co/hYSYvC5/sticker-idea.png"},
}

// Stickers returns a copy of the catalog.
func Stickers() []Sticker {
	out := make([]Sticker, len(stickers))
	copy(out, stickers)
	return out
}

// StickerNames returns the catalog names in catalog order.
func StickerNames() []string {
	names := make([]string, len(stickers))
	for i, s := range stickers {
		names[i] = s.Name
	}
	return names
}

// LookupSticker finds a sticker by name.
func LookupSticker(name string) (Sticker, bool) {
	for _, s := range stickers {
		if s.Name == name {
			return s, true
		}
	}
	return Sticker{}, false
}
