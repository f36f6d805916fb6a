package lexical

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// stopwords is a compact Vietnamese function-word list. Query words like
// "calo" or "protein" are content words and stay searchable.
var stopwords = toSet([]string{
	"à", "à", "ạ", "ai", "anh", "bao", "bị", "bởi", "các", "cái", "cần", "cho", "chị", "chiếc",
	"chứ", "chưa", "có", "còn", "của", "cùng", "cũng", "đã", "đang", "đây", "để", "đến", "đều",
	"điều", "do", "đó", "được", "gì", "hay", "hơn", "khi", "không", "là", "lại", "lên", "lúc",
	"mà", "mình", "mỗi", "một", "nào", "này", "nên", "nếu", "ngay", "nhé", "nhiêu", "nhiều",
	"như", "nhưng", "những", "nó", "nữa", "ở", "ơi", "phải", "qua", "ra", "rằng", "rất", "rồi",
	"sao", "sẽ", "tại", "thì", "thế", "theo", "tôi", "trên", "trong", "từ", "và", "vẫn", "vào",
	"về", "vì", "với", "vừa", "the", "a", "an", "of", "and", "is",
})

func toSet(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[norm.NFC.String(w)] = struct{}{}
	}
	return out
}

// Tokenize normalizes text to NFC lower case, splits it into letter/digit
// syllables, drops stop words and appends adjacent-syllable bigrams so that
// compound words such as "phở_bò" match as a unit.
func Tokenize(text string) []string {
	text = strings.ToLower(norm.NFC.String(text))
	syllables := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r)
	})

	kept := make([]string, 0, len(syllables))
	for _, s := range syllables {
		if _, stop := stopwords[s]; stop {
			continue
		}
		kept = append(kept, s)
	}

	tokens := make([]string, 0, len(kept)*2)
	tokens = append(tokens, kept...)
	for i := 0; i+1 < len(kept); i++ {
		tokens = append(tokens, kept[i]+"_"+kept[i+1])
	}
	return tokens
}
