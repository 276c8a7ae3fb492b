package metadata

import (
	"bufio"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// blackList excludes known-wrong guesses from a base class's derived
// subclass list. TaskConfig's dump carries two names that resolve to the
// same runtime behavior tag rather than a distinct JSON-configurable
// subclass, so they're never valid dispatch targets.
var blackList = map[string][]string{
	"TaskConfig": {"LevelShowDialog", "OCDJOKABOEP"},
}

var (
	namespaceRe  = regexp.MustCompile(`^// Namespace: (.*)`)
	classAnyRe   = regexp.MustCompile(`public(.*)? class`)
	classDeclRe  = regexp.MustCompile(`public(?: .*)? class ([a-zA-Z0-9_]+(?:\.[a-zA-Z0-9_]+)?)(?: : ([a-zA-Z0-9_]+))?`)
	fieldPlainRe = regexp.MustCompile(`public ([a-zA-Z0-9_]+)(\[\])? ([a-zA-Z0-9_]+);`)
	fieldGenRe   = regexp.MustCompile(`public(?: readonly)? (\w+)<([\w.,\s]+)> (\w+);`)
	excelRowRe   = regexp.MustCompile(`public static void [A-Z]+\(Dictionary<string, int> [A-Z]+, string\[\] [A-Z]+, out ([a-zA-Z0-9]+)Row [A-Z]+\) \{ \}`)
	enumDeclRe   = regexp.MustCompile(`public enum ([a-zA-Z0-9_]+)`)
	obfuscatedRe = regexp.MustCompile(`^[A-Z]{11,}$`)
)

func enumMemberRe(enumName string) *regexp.Regexp {
	return regexp.MustCompile(`public const ` + regexp.QuoteMeta(enumName) + ` ([a-zA-Z0-9_]+) = (-?[0-9]+);`)
}

var enumUnderlyingRe = regexp.MustCompile(`public (\w+) value__;`)

// parser walks a class-dump line stream the way the reference ClassLoader
// does: a cursor index into a flat line slice, mutated by the class/enum
// sub-parsers as they consume their bodies.
type parser struct {
	lines   []string
	idx     int
	cur     *Catalog
	curNS   string
}

// Parse builds a Catalog from a full il2cpp-style header dump (one class or
// enum declaration per block, braces delimiting bodies).
func Parse(r io.Reader) (*Catalog, error) {
	return ParseWithOverrides(r, nil, nil)
}

// ParseWithOverrides is Parse, plus a pre-seeded subclass index (e.g. loaded
// from an --index-override file) and a list of base classes to exclude from
// automatic derivation entirely.
func ParseWithOverrides(r io.Reader, overrides map[string]map[int]string, extraBlacklist []string) (*Catalog, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	p := &parser{lines: lines, cur: newCatalog()}
	p.run()
	p.guessDerivationIdx(overrides, extraBlacklist)
	return p.cur, nil
}

func (p *parser) run() {
	n := len(p.lines)
	for p.idx < n {
		line := p.lines[p.idx]
		if m := namespaceRe.FindStringSubmatch(line); m != nil {
			p.curNS = m[1]
		}
		switch {
		case classAnyRe.MatchString(line):
			p.loadClass()
		case strings.HasPrefix(line, "public enum"):
			p.loadEnum()
		default:
			p.idx++
		}
	}
}

func (p *parser) loadClass() {
	m := classDeclRe.FindStringSubmatch(p.lines[p.idx])
	if m == nil {
		p.idx++
		return
	}
	className := m[1]
	baseClass := m[2]

	if _, exists := p.cur.classes[className]; exists && p.curNS != "RPG.GameCore" {
		p.idx++
		return
	}

	if baseClass != "" {
		p.cur.classes[className] = &ClassDecl{Name: className, Base: baseClass}
		p.cur.revBase[baseClass] = append(p.cur.revBase[baseClass], className)
	} else {
		p.cur.classes[className] = &ClassDecl{Name: className}
	}
	decl := p.cur.classes[className]

	p.idx++
	n := len(p.lines)
	for p.idx < n && !strings.HasPrefix(p.lines[p.idx], "}") {
		line := p.lines[p.idx]
		if m := fieldPlainRe.FindStringSubmatch(line); m != nil {
			decl.Fields = append(decl.Fields, FieldDecl{
				Name:    m[3],
				Type:    m[1],
				IsArray: m[2] != "",
			})
		} else if m := fieldGenRe.FindStringSubmatch(line); m != nil {
			args := strings.Split(m[2], ",")
			for i := range args {
				args[i] = strings.TrimSpace(args[i])
			}
			decl.Fields = append(decl.Fields, FieldDecl{
				Name:        m[3],
				Type:        m[1],
				IsGeneric:   true,
				GenericArgs: args,
			})
		}
		if strings.Contains(line, "Row") {
			if m := excelRowRe.FindStringSubmatch(line); m != nil {
				p.cur.excelRowClasses[m[1]] = struct{}{}
			}
		}
		p.idx++
	}
}

func (p *parser) loadEnum() {
	m := enumDeclRe.FindStringSubmatch(p.lines[p.idx])
	if m == nil {
		p.idx++
		return
	}
	decl := newEnumDecl(m[1])
	memberRe := enumMemberRe(decl.Name)

	p.idx++
	n := len(p.lines)
	for p.idx < n && !strings.HasPrefix(p.lines[p.idx], "}") {
		line := p.lines[p.idx]
		if m := memberRe.FindStringSubmatch(line); m != nil {
			v, err := strconv.ParseInt(m[2], 10, 64)
			if err == nil {
				decl.Add(m[1], v)
			}
		} else if m := enumUnderlyingRe.FindStringSubmatch(line); m != nil {
			switch m[1] {
			case "ushort":
				decl.Kind = EnumUint16
			case "uint":
				decl.Kind = EnumUint32
			default:
				decl.Kind = EnumSigned32
			}
		}
		p.idx++
	}
	p.cur.enums[decl.Name] = decl
}

// mergeDerivationClassList collects every transitive descendant of
// className via the reverse-base-class adjacency built during parsing.
func (c *Catalog) mergeDerivationClassList(className string) []string {
	subs, ok := c.revBase[className]
	if !ok {
		return nil
	}
	var ret []string
	for _, sub := range subs {
		ret = append(ret, sub)
		ret = append(ret, c.mergeDerivationClassList(sub)...)
	}
	return ret
}

func (c *Catalog) isJSONConfig(name string) bool {
	for {
		if name == "" {
			return false
		}
		if name == "JsonConfig" {
			return true
		}
		cd, ok := c.classes[name]
		if !ok {
			return false
		}
		name = cd.Base
	}
}

// guessDerivationIdx derives subclass dispatch tables for every base class
// that sits strictly below JsonConfig in the hierarchy (i.e. every base
// whose own subclasses need a wire index to disambiguate). overrides seeds
// already-known tables (e.g. supplied via an index-override file) which are
// never recomputed; extraBlacklist names additional bases to skip outright.
func (p *parser) guessDerivationIdx(overrides map[string]map[int]string, extraBlacklist []string) {
	c := p.cur
	for base, table := range overrides {
		c.subclass[base] = table
	}
	skip := make(map[string]struct{}, len(extraBlacklist))
	for _, b := range extraBlacklist {
		skip[b] = struct{}{}
	}

	needed := make(map[string]struct{})
	for k := range c.classes {
		if c.isJSONConfig(k) && c.BaseOf(k) != "JsonConfig" {
			needed[c.BaseOf(k)] = struct{}{}
		}
	}

	for item := range needed {
		if item == "" {
			continue
		}
		if _, ok := c.subclass[item]; ok {
			continue
		}
		if _, ok := skip[item]; ok {
			continue
		}
		excluded := make(map[string]struct{})
		for _, x := range blackList[item] {
			excluded[x] = struct{}{}
		}
		seen := make(map[string]struct{})
		var field []string
		for _, name := range c.mergeDerivationClassList(item) {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			if _, bad := excluded[name]; bad {
				continue
			}
			if obfuscatedRe.MatchString(name) {
				continue
			}
			field = append(field, name)
		}
		sort.Strings(field)
		table := make(map[int]string, len(field)+1)
		for i, it := range field {
			table[i+1] = it
		}
		table[0] = item
		c.subclass[item] = table
	}
}
