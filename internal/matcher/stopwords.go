package matcher

// stopwords is a fixed small list for Brazilian Portuguese, the
// system's default document language (spec.md §6 "language-region
// hint (default: Brazilian Portuguese)"). Kept as data, not code
// (spec.md §4.4).
var stopwords = map[string]struct{}{
	"a": {}, "o": {}, "as": {}, "os": {}, "um": {}, "uma": {}, "uns": {}, "umas": {},
	"de": {}, "do": {}, "da": {}, "dos": {}, "das": {}, "em": {}, "no": {}, "na": {},
	"nos": {}, "nas": {}, "para": {}, "por": {}, "com": {}, "sem": {}, "sob": {},
	"sobre": {}, "e": {}, "ou": {}, "mas": {}, "que": {}, "se": {}, "ao": {}, "aos": {},
	"à": {}, "às": {}, "é": {}, "são": {}, "foi": {}, "ser": {}, "estar": {}, "esta": {},
	"este": {}, "isso": {}, "isto": {}, "seu": {}, "sua": {}, "seus": {}, "suas": {},
	"meu": {}, "minha": {}, "nosso": {}, "nossa": {}, "pelo": {}, "pela": {}, "num": {},
	"numa": {}, "já": {}, "não": {}, "também": {}, "como": {}, "mais": {}, "menos": {},
}

func isStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}
