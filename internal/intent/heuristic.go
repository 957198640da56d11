package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/MrWong99/larder/internal/inventory"
)

// Verb prefixes stripped from the first token of an utterance.
var (
	addVerbs    = []string{"放入", "加入", "存放", "放进", "买了", "添加"}
	removeVerbs = []string{"拿出", "取出", "吃了", "用了", "用掉", "拿走", "移除", "删除", "去掉"}
)

// locationKeywords mark tokens that describe where an item is kept.
var locationKeywords = []string{"层", "格", "位置", "冰箱", "架", "箱", "冷藏", "冷冻室", "抽屉", "门"}

const classifiers = "个盒瓶包袋斤份根只块罐条颗把升克枚"

var (
	dateRe      = regexp.MustCompile(`(\d{4})\s*[-/年.]\s*(\d{1,2})\s*[-/月.]\s*(\d{1,2})\s*日?`)
	shelfLifeRe = regexp.MustCompile(`(?:保质期|保鲜期)?\s*(\d+)\s*天`)
	digitQtyRe  = regexp.MustCompile(`(\d+)\s*([` + classifiers + `]?)`)
	cnQtyRe     = regexp.MustCompile(`([一二两三四五六七八九十]+)\s*([` + classifiers + `])`)
	quantityAt  = regexp.MustCompile(`\d|[一二两三四五六七八九十]+[` + classifiers + `]`)

	leadingQtyRe = regexp.MustCompile(`^(?:\d+[` + classifiers + `]?|[一二两三四五六七八九十]+[` + classifiers + `])`)
)

// ParseAdd extracts an item from an utterance such as "放入 鸡蛋 6 个 冰箱 上层
// 保质期 10 天" without a language model. It returns false when no name can
// be found. Dates are interpreted in now's location.
func ParseAdd(text string, now time.Time) (inventory.Item, bool) {
	rest := text
	var it inventory.Item

	if m := dateRe.FindStringSubmatch(rest); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
			it.ExpiresAt = time.Date(y, time.Month(mo), d, 0, 0, 0, 0, now.Location())
		}
		rest = strings.Replace(rest, m[0], " ", 1)
	}
	if m := shelfLifeRe.FindStringSubmatch(rest); m != nil {
		it.ShelfLifeDays, _ = strconv.Atoi(m[1])
		rest = strings.Replace(rest, m[0], " ", 1)
	}

	name, tail, ok := leadingName(rest, addVerbs)
	if !ok {
		return inventory.Item{}, false
	}
	it.Name = name
	it.Quantity, it.Unit = parseQuantity(tail)
	it.Location = parseLocation(tail)
	it.Category = guessCategory(name, text)
	return it, true
}

// ParseRemove extracts the item name and quantity from an utterance such as
// "拿出 牛奶 一盒". The quantity defaults to 1.
func ParseRemove(text string) (name string, quantity int, ok bool) {
	name, tail, ok := leadingName(text, removeVerbs)
	if !ok {
		return "", 0, false
	}
	quantity, _ = parseQuantity(tail)
	return name, quantity, true
}

// tokenize splits on whitespace and punctuation.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) && r != '-'
	})
}

// leadingName returns the first word of text after stripping a leading verb,
// cut before any attached quantity ("鸡蛋6个" → "鸡蛋"). A quantity in front of
// the name ("两盒牛奶") is moved into tail, which holds everything that is not
// the name.
func leadingName(text string, verbs []string) (name, tail string, ok bool) {
	tokens := tokenize(text)
	var moved []string
	for len(tokens) > 0 {
		tok := tokens[0]
		tokens = tokens[1:]
		for _, v := range verbs {
			if strings.HasPrefix(tok, v) {
				tok = strings.TrimPrefix(tok, v)
				break
			}
		}
		if q := leadingQtyRe.FindString(tok); q != "" {
			moved = append(moved, q)
			tok = tok[len(q):]
		}
		if strings.Trim(tok, classifiers) == "" {
			if tok != "" {
				moved = append(moved, tok)
			}
			continue
		}
		if loc := quantityAt.FindStringIndex(tok); loc != nil && loc[0] > 0 {
			tokens = append([]string{tok[loc[0]:]}, tokens...)
			tok = tok[:loc[0]]
		}
		return tok, strings.Join(append(moved, tokens...), " "), true
	}
	return "", "", false
}

// parseQuantity finds the first quantity in s. Arabic digits win over
// Chinese numerals; anything below one becomes one.
func parseQuantity(s string) (int, string) {
	if m := digitQtyRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return n, m[2]
		}
		return 1, m[2]
	}
	if m := cnQtyRe.FindStringSubmatch(s); m != nil {
		if n := chineseNumber(m[1]); n > 0 {
			return n, m[2]
		}
		return 1, m[2]
	}
	return 1, ""
}

var cnDigits = map[rune]int{
	'一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// chineseNumber converts numerals below one hundred ("六", "十二", "二十三").
// It returns 0 for anything it does not understand.
func chineseNumber(s string) int {
	runes := []rune(s)
	switch len(runes) {
	case 1:
		if runes[0] == '十' {
			return 10
		}
		return cnDigits[runes[0]]
	case 2:
		if runes[0] == '十' {
			return 10 + cnDigits[runes[1]]
		}
		if runes[1] == '十' {
			return cnDigits[runes[0]] * 10
		}
	case 3:
		if runes[1] == '十' {
			return cnDigits[runes[0]]*10 + cnDigits[runes[2]]
		}
	}
	return 0
}

// parseLocation joins the consecutive tokens that contain a location keyword
// ("冰箱 上层" → "冰箱上层"), dropping quantities and a leading "在".
func parseLocation(s string) string {
	var b strings.Builder
	for _, tok := range tokenize(s) {
		if containsAny(tok, locationKeywords) {
			tok = digitQtyRe.ReplaceAllString(tok, "")
			tok = cnQtyRe.ReplaceAllString(tok, "")
			for _, p := range []string{"放在", "在", "放"} {
				if strings.HasPrefix(tok, p) {
					tok = strings.TrimPrefix(tok, p)
					break
				}
			}
			b.WriteString(tok)
		} else if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

// guessCategory maps name keywords to a category. "冷冻" anywhere in the
// utterance marks frozen food; storage words like "冰箱" do not.
func guessCategory(name, text string) string {
	switch {
	case strings.Contains(name, "蛋"):
		return "蛋类"
	case containsAny(name, []string{"牛奶", "牛乳", "酸奶", "奶", "milk"}):
		return "乳制品"
	case containsAny(name, []string{"肉", "鸡", "猪", "鱼", "虾"}):
		return "肉类"
	case containsAny(name, []string{"菜", "蔬", "果", "瓜"}):
		return "蔬果"
	case containsAny(name, []string{"熟"}):
		return "熟食"
	case containsAny(name, []string{"冰淇淋", "冻"}) || strings.Contains(text, "冷冻"):
		return "冷冻"
	}
	return ""
}

func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
