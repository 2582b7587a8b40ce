package fieldkey

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Icons
const (
	IconMail     = "mail"
	IconPhone    = "phone"
	IconCalendar = "calendar"
	IconMapPin   = "map-pin"
	IconUsers    = "users"
	IconUser     = "user"
	IconAward    = "award"
	IconBook     = "book"
	IconLayers   = "layers"
	IconHash     = "hash"
	IconDefault  = "file-text"
)

type iconRule struct {
	icon     string
	keywords []string
}

// first matching rule wins
var iconRules = []iconRule{
	{IconMail, []string{"email"}},
	{IconPhone, []string{"phone", "mobile", "contact"}},
	{IconCalendar, []string{"date", "dob", "birth", "createdat", "updatedat"}},
	{IconMapPin, []string{"address", "city", "state", "country", "pincode", "zip"}},
	{IconUsers, []string{"father", "mother", "parent", "guardian"}},
	{IconUser, []string{"name"}},
	{IconAward, []string{"mark", "score", "grade", "percentage", "result"}},
	{IconBook, []string{"subject", "course"}},
	{IconLayers, []string{"class", "section", "stream"}},
	{IconHash, []string{"roll", "admission", "number", "code", "id"}},
}

// Icons lists every icon tag an entry may carry.
var Icons = func() []string {
	icons := make([]string, 0, len(iconRules)+1)
	for _, rule := range iconRules {
		icons = append(icons, rule.icon)
	}
	return append(icons, IconDefault)
}()

// IconFor picks the icon of a field path.
func IconFor(path string) string {
	key := strings.ToLower(path)
	for _, rule := range iconRules {
		for _, kw := range rule.keywords {
			if strings.Contains(key, kw) {
				return rule.icon
			}
		}
	}
	return IconDefault
}

// casers are stateful, never share them between goroutines
func title(s string) string { return cases.Title(language.Und, cases.NoLower).String(s) }

// DeriveLabel turns a dotted camelCase path into words: "studentName.firstName" -> "Student Name First Name".
// Acronyms stay together ("parentGPA" -> "Parent GPA").
func DeriveLabel(path string) string {
	words := make([]string, 0, 4)
	for _, seg := range splitPath(path) {
		for _, w := range splitWords(seg) {
			words = append(words, title(w))
		}
	}
	return strings.Join(words, " ")
}

// splitWords splits a camelCase, snake_case or kebab-case identifier.
func splitWords(s string) []string {
	runes := []rune(s)
	words := make([]string, 0, 2)
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			words = append(words, string(runes[start:end]))
		}
		start = -1
	}
	for i, r := range runes {
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			flush(i)
			continue
		}
		if start >= 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush(i)
			}
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(runes))
	return words
}

// LowerCamel joins words into a lowerCamel identifier: "Term 1 Total Marks" -> "term1TotalMarks".
func LowerCamel(s string) string {
	var sb strings.Builder
	lower := cases.Lower(language.Und)
	first := true
	for _, w := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		for _, part := range splitWords(w) {
			part = lower.String(part)
			if first {
				sb.WriteString(part)
				first = false
				continue
			}
			sb.WriteString(title(part))
		}
	}
	return sb.String()
}

// InferType maps a sample value to a data type. Unknown values and null are strings.
func InferType(v interface{}) string {
	switch v.(type) {
	case nil:
		return TypeString
	case time.Time:
		return TypeDate
	case bool:
		return TypeBoolean
	case string:
		return TypeString
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return TypeNumber
	}
	return TypeString
}

// FormatValue stringifies a sample value.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return ""
}
