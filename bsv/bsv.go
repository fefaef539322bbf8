// Package bsv provides the Bluespec SystemVerilog grammar.
//
// The grammar covers packages, imports, modules, interfaces, typedefs,
// functions, rules, methods, statements, expressions with ten binary
// precedence levels, types and literals. Comments are extras and may
// also appear as declarations.
package bsv

import (
	"sync"

	"github.com/tliron/commonlog"

	"github.com/dhamidi/grove/grammar"
	"github.com/dhamidi/grove/language"
)

// Name is the name of the language.
const Name = "bsv"

// Extensions lists the file extensions of BSV sources.
var Extensions = []string{".bsv", ".bs"}

var log = commonlog.GetLogger("grove.bsv")

var (
	once sync.Once
	lang *language.Language
	err  error
)

// Language compiles the grammar on first use and returns the shared
// handle.
func Language() (*language.Language, error) {
	once.Do(func() {
		lang, err = language.Compile(Grammar())
		if err != nil {
			return
		}
		if undeclared := lang.Table.UndeclaredConflicts(); len(undeclared) > 0 {
			log.Debugf("%d undeclared conflicts, parser forks on them", len(undeclared))
		}
	})
	return lang, err
}

var (
	sym     = grammar.Sym
	str     = grammar.Str
	pat     = grammar.Pattern
	seq     = grammar.Seq
	choice  = grammar.Choice
	opt     = grammar.Optional
	repeat  = grammar.Repeat
	field   = grammar.Field
	define  = grammar.Define
	precL   = grammar.PrecLeft
	precR   = grammar.PrecRight
	prec    = grammar.Prec
	token   = grammar.Token
	literal = func(words ...string) grammar.Rule {
		rules := make([]grammar.Rule, len(words))
		for i, w := range words {
			rules[i] = str(w)
		}
		return choice(rules...)
	}
)

// commaSep1 matches one or more r separated by commas.
func commaSep1(r grammar.Rule) grammar.Rule {
	return seq(r, repeat(seq(str(","), r)))
}

// endLabel matches the optional ": name" after an end keyword.
func endLabel() grammar.Rule {
	return opt(seq(str(":"), sym("identifier")))
}

// Grammar returns a fresh copy of the BSV grammar.
func Grammar() *grammar.Grammar {
	return &grammar.Grammar{
		Name: Name,
		Extras: []grammar.Rule{
			pat(`\s`),
			sym("comment"),
		},
		Conflicts: [][]string{
			{"method_declaration"},
			{"assignment_statement", "expression"},
			{"assignment_statement", "bit_select"},
		},
		Rules: rules(),
	}
}

func rules() []grammar.Definition {
	var defs []grammar.Definition
	defs = append(defs, declarations()...)
	defs = append(defs, statements()...)
	defs = append(defs, expressions()...)
	defs = append(defs, types()...)
	defs = append(defs, literals()...)
	return defs
}

func declarations() []grammar.Definition {
	return []grammar.Definition{
		define("source_file", repeat(sym("_definition"))),

		define("_definition", choice(
			sym("package_declaration"),
			sym("import_declaration"),
			sym("module_declaration"),
			sym("interface_declaration"),
			sym("typedef_declaration"),
			sym("function_declaration"),
			sym("comment"),
		)),

		define("comment", token(choice(
			seq(str("//"), pat(`.*`)),
			seq(str("(*"), pat(`[^*]*\*+(?:[^)*][^*]*\*+)*`), str(")")),
			seq(str("/*"), pat(`[^*]*\*+(?:[^/][^*]*\*+)*`), str("/")),
		))),

		define("package_declaration", seq(
			str("package"),
			field("name", sym("identifier")),
			str(";"),
			repeat(sym("_definition")),
			str("endpackage"),
			endLabel(),
		)),

		define("import_declaration", seq(
			str("import"),
			sym("identifier"),
			str("::"),
			str("*"),
			str(";"),
		)),

		define("module_declaration", seq(
			opt(str("export")),
			str("module"),
			field("name", sym("identifier")),
			opt(sym("parameter_list")),
			sym("module_body"),
			str("endmodule"),
			endLabel(),
		)),

		define("module_body", seq(
			str("("),
			opt(sym("identifier")),
			str(")"),
			str(";"),
			repeat(choice(
				sym("variable_declaration"),
				sym("rule_declaration"),
				sym("method_declaration"),
				sym("comment"),
			)),
		)),

		define("interface_declaration", seq(
			str("interface"),
			field("name", sym("identifier")),
			opt(sym("parameter_list")),
			str(";"),
			repeat(choice(sym("method_declaration"), sym("comment"))),
			str("endinterface"),
			endLabel(),
		)),

		define("typedef_declaration", seq(
			str("typedef"),
			choice(
				seq(sym("type"), sym("identifier")),
				seq(str("enum"), str("{"), sym("identifier_list"), str("}"), sym("identifier")),
				seq(str("struct"), str("{"), repeat(sym("struct_member")), str("}"), sym("identifier")),
			),
			str(";"),
		)),

		define("struct_member", seq(sym("type"), sym("identifier"), str(";"))),

		define("function_declaration", seq(
			str("function"),
			sym("type"),
			field("name", sym("identifier")),
			sym("parameter_list"),
			str(";"),
			repeat(choice(sym("variable_declaration"), sym("statement"), sym("comment"))),
			str("endfunction"),
			endLabel(),
		)),

		define("rule_declaration", seq(
			str("rule"),
			field("name", sym("identifier")),
			opt(seq(str("("), sym("expression"), str(")"))),
			str(";"),
			repeat(choice(sym("statement"), sym("comment"))),
			str("endrule"),
			endLabel(),
		)),

		// Methods with a body belong to modules, those without to
		// interfaces.
		define("method_declaration", choice(
			seq(
				str("method"),
				opt(sym("type")),
				field("name", sym("identifier")),
				opt(sym("parameter_list")),
				str(";"),
				repeat(choice(sym("statement"), sym("comment"))),
				str("endmethod"),
				endLabel(),
				str(";"),
			),
			seq(
				str("method"),
				opt(sym("type")),
				field("name", sym("identifier")),
				opt(sym("parameter_list")),
				str(";"),
			),
		)),

		define("variable_declaration", seq(
			sym("type"),
			sym("identifier"),
			opt(seq(str("="), sym("expression"))),
			str(";"),
		)),
	}
}

func statements() []grammar.Definition {
	return []grammar.Definition{
		define("statement", choice(
			sym("assignment_statement"),
			sym("if_statement"),
			sym("case_statement"),
			sym("return_statement"),
			sym("expression_statement"),
		)),

		define("assignment_statement", seq(
			sym("identifier"),
			opt(seq(str("["), sym("expression"), str("]"))),
			str("<="),
			sym("expression"),
			str(";"),
		)),

		define("if_statement", precR(0, seq(
			str("if"),
			str("("),
			sym("expression"),
			str(")"),
			sym("statement"),
			opt(seq(str("else"), sym("statement"))),
		))),

		define("case_statement", seq(
			str("case"),
			str("("),
			sym("expression"),
			str(")"),
			repeat(sym("case_item")),
			opt(seq(str("default"), str(":"), sym("statement"))),
			str("endcase"),
		)),

		define("case_item", seq(sym("expression"), str(":"), sym("statement"))),

		define("return_statement", seq(str("return"), sym("expression"), str(";"))),

		define("expression_statement", seq(sym("expression"), str(";"))),
	}
}

// binaryLevels lists the binary operators from loosest to tightest.
var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"|"},
	{"^"},
	{"&"},
	{"==", "!="},
	{"<", "<=", ">", ">="},
	{"<<", ">>"},
	{"+", "-"},
	{"*", "/", "%"},
}

func expressions() []grammar.Definition {
	binary := make([]grammar.Rule, len(binaryLevels))
	for i, ops := range binaryLevels {
		binary[i] = precL(i+1, seq(sym("expression"), literal(ops...), sym("expression")))
	}
	return []grammar.Definition{
		define("expression", choice(
			sym("identifier"),
			sym("number"),
			sym("string"),
			sym("boolean"),
			sym("binary_expression"),
			sym("unary_expression"),
			sym("call_expression"),
			sym("member_expression"),
			sym("parenthesized_expression"),
			sym("bit_select"),
			sym("bit_concat"),
		)),

		define("binary_expression", choice(binary...)),

		define("unary_expression", prec(len(binaryLevels)+1, seq(
			literal("!", "-", "~", "&", "|", "^"),
			sym("expression"),
		))),

		define("call_expression", seq(
			sym("identifier"),
			str("("),
			opt(sym("argument_list")),
			str(")"),
		)),

		define("member_expression", seq(sym("expression"), str("."), sym("identifier"))),

		define("parenthesized_expression", seq(str("("), sym("expression"), str(")"))),

		define("bit_select", seq(
			sym("identifier"),
			str("["),
			sym("expression"),
			opt(seq(str(":"), sym("expression"))),
			str("]"),
		)),

		define("bit_concat", seq(str("{"), commaSep1(sym("expression")), str("}"))),
	}
}

func types() []grammar.Definition {
	typeArg := choice(sym("type"), sym("number"), sym("expression"))
	return []grammar.Definition{
		define("type", choice(
			sym("parameterized_type"),
			sym("vector_type"),
			sym("primitive_type"),
			sym("identifier"),
		)),

		define("primitive_type", literal(
			"Bit", "Int", "UInt", "Bool", "void", "Integer", "String",
			"Reg", "Wire", "FIFO", "Action", "ActionValue", "Rules", "Module",
		)),

		define("parameterized_type", seq(
			choice(sym("identifier"), sym("primitive_type")),
			str("#"),
			str("("),
			commaSep1(typeArg),
			str(")"),
		)),

		define("vector_type", seq(
			str("Vector"),
			str("#"),
			str("("),
			sym("expression"),
			str(","),
			sym("type"),
			str(")"),
		)),

		define("parameter_list", seq(
			str("("),
			opt(commaSep1(sym("parameter"))),
			str(")"),
		)),

		define("parameter", seq(sym("type"), sym("identifier"))),

		define("argument_list", commaSep1(sym("expression"))),

		define("identifier_list", commaSep1(sym("identifier"))),
	}
}

func literals() []grammar.Definition {
	return []grammar.Definition{
		define("identifier", pat(`[a-zA-Z_][a-zA-Z0-9_]*`)),

		define("number", choice(
			pat(`[0-9]+`),
			pat(`[0-9]+\.[0-9]+`),
			pat(`[0-9]+'[bBoOdDhH][0-9a-fA-F_]+`),
		)),

		define("string", token(seq(str(`"`), pat(`[^"]*`), str(`"`)))),

		define("boolean", literal("True", "False")),
	}
}
