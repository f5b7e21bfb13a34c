// models/alphabet.go
package models

// RussianAlphabet 俄语字母表，与客户端的字母面板一致
var RussianAlphabet = []string{
	"А", "Б", "В", "Г", "Д", "Е", "Ё", "Ж", "З", "И", "Й",
	"К", "Л", "М", "Н", "О", "П", "Р", "С", "Т", "У", "Ф",
	"Х", "Ц", "Ч", "Ш", "Щ", "Ъ", "Ы", "Ь", "Э", "Ю", "Я",
}

var alphabetSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(RussianAlphabet))
	for _, l := range RussianAlphabet {
		set[l] = struct{}{}
	}
	return set
}()

// ValidLetter reports whether s is a letter of the alphabet.
func ValidLetter(s string) bool {
	_, ok := alphabetSet[s]
	return ok
}
