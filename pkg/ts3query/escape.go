package ts3query

import "strings"

// ServerQuery escape sequences, the backslash must come first when escaping.
var escapePairs = []struct {
	plain   string
	escaped string
}{
	{`\`, `\\`},
	{`/`, `\/`},
	{` `, `\s`},
	{`|`, `\p`},
	{"\a", `\a`},
	{"\b", `\b`},
	{"\f", `\f`},
	{"\n", `\n`},
	{"\r", `\r`},
	{"\t", `\t`},
	{"\v", `\v`},
}

var (
	escaper   *strings.Replacer
	unescaper *strings.Replacer
)

func init() {
	esc := make([]string, 0, 2*len(escapePairs))
	unesc := make([]string, 0, 2*len(escapePairs))
	for _, p := range escapePairs {
		esc = append(esc, p.plain, p.escaped)
		unesc = append(unesc, p.escaped, p.plain)
	}
	escaper = strings.NewReplacer(esc...)
	unescaper = strings.NewReplacer(unesc...)
}

// Escape converts a plain string into a ServerQuery parameter value.
func Escape(str string) string {
	return escaper.Replace(str)
}

// Unescape converts a ServerQuery value back into plain text, ex.: "My\sServer" -> "My Server".
func Unescape(str string) string {
	return unescaper.Replace(str)
}
