package grammar

// Rule is one node of a rule body. Bodies are built with the functions in
// this file and mirror the usual grammar.js vocabulary.
type Rule interface {
	isRule()
}

// Assoc is the associativity attached by PrecLeft and PrecRight.
type Assoc int

const (
	AssocNone Assoc = iota
	AssocLeft
	AssocRight
)

func (a Assoc) String() string {
	switch a {
	case AssocLeft:
		return "left"
	case AssocRight:
		return "right"
	}
	return "none"
}

type blankRule struct{}

type stringRule struct {
	value string
}

type patternRule struct {
	expr string
}

type symbolRule struct {
	name string
}

type seqRule struct {
	members []Rule
}

type choiceRule struct {
	members []Rule
}

type repeatRule struct {
	body       Rule
	atLeastOne bool
}

type precRule struct {
	assoc   Assoc
	value   int
	dynamic bool
	body    Rule
}

type fieldRule struct {
	name string
	body Rule
}

type tokenRule struct {
	body Rule
}

func (blankRule) isRule()   {}
func (stringRule) isRule()  {}
func (patternRule) isRule() {}
func (symbolRule) isRule()  {}
func (seqRule) isRule()     {}
func (choiceRule) isRule()  {}
func (repeatRule) isRule()  {}
func (precRule) isRule()    {}
func (fieldRule) isRule()   {}
func (tokenRule) isRule()   {}

// Blank matches the empty string.
func Blank() Rule { return blankRule{} }

// Str matches a literal string. Literals become anonymous terminals.
func Str(s string) Rule { return stringRule{value: s} }

// Pattern matches a regular expression in regexp/syntax Perl syntax.
func Pattern(expr string) Rule { return patternRule{expr: expr} }

// Sym references another rule, or an external token, by name.
func Sym(name string) Rule { return symbolRule{name: name} }

func Seq(members ...Rule) Rule { return seqRule{members: members} }

func Choice(members ...Rule) Rule { return choiceRule{members: members} }

func Optional(r Rule) Rule { return choiceRule{members: []Rule{r, blankRule{}}} }

// Repeat matches zero or more occurrences of r.
func Repeat(r Rule) Rule { return repeatRule{body: r} }

// Repeat1 matches one or more occurrences of r.
func Repeat1(r Rule) Rule { return repeatRule{body: r, atLeastOne: true} }

// Prec gives every production generated from r the precedence n.
func Prec(n int, r Rule) Rule { return precRule{value: n, body: r} }

func PrecLeft(n int, r Rule) Rule { return precRule{assoc: AssocLeft, value: n, body: r} }

func PrecRight(n int, r Rule) Rule { return precRule{assoc: AssocRight, value: n, body: r} }

// PrecDynamic is consulted at parse time, when the engine has to choose
// between stack versions that both succeeded.
func PrecDynamic(n int, r Rule) Rule { return precRule{value: n, dynamic: true, body: r} }

// Field names the children produced by r.
func Field(name string, r Rule) Rule { return fieldRule{name: name, body: r} }

// Token makes the whole of r a single terminal.
func Token(r Rule) Rule { return tokenRule{body: r} }
