package parser

import (
	"strings"
	"unsafe"

	tree_sitter_zig "github.com/tree-sitter-grammars/tree-sitter-zig/bindings/go"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"
	tree_sitter_cpp "github.com/tree-sitter/tree-sitter-cpp/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/standardbeagle/xref/internal/debug"
	"github.com/standardbeagle/xref/internal/types"
)

// grammar describes how one tree-sitter grammar maps onto occurrence records.
// Every pattern captures a single identifier node as @def, @decl or @assign;
// identifiers no pattern claims are reported as uses.
type grammar struct {
	lang       types.Language
	extensions []string
	tsLanguage func() unsafe.Pointer
	patterns   []string
	identKinds []string
}

var grammars = []grammar{
	{
		lang:       types.LanguageGo,
		extensions: []string{".go"},
		tsLanguage: tree_sitter_go.Language,
		patterns: []string{
			`(function_declaration name: (identifier) @def)`,
			`(method_declaration name: (field_identifier) @def)`,
			`(type_spec name: (type_identifier) @def)`,
			`(const_spec name: (identifier) @def)`,
			`(var_spec name: (identifier) @def)`,
			`(field_declaration name: (field_identifier) @def)`,
			`(parameter_declaration name: (identifier) @def)`,
			`(short_var_declaration left: (expression_list (identifier) @def))`,
			`(method_elem name: (field_identifier) @decl)`,
			`(assignment_statement left: (expression_list (identifier) @assign))`,
			`(inc_statement (identifier) @assign)`,
			`(dec_statement (identifier) @assign)`,
		},
		identKinds: []string{"identifier", "type_identifier", "field_identifier", "package_identifier"},
	},
	{
		// C is parsed with the C++ grammar, which accepts it
		lang:       types.LanguageCpp,
		extensions: []string{".c", ".h", ".cc", ".cpp", ".cxx", ".hh", ".hpp", ".hxx", ".inc", ".mm"},
		tsLanguage: tree_sitter_cpp.Language,
		patterns: []string{
			`(function_definition declarator: (function_declarator declarator: (identifier) @def))`,
			`(function_definition declarator: (function_declarator declarator: (field_identifier) @def))`,
			`(function_definition declarator: (function_declarator declarator: (qualified_identifier name: (identifier) @def)))`,
			`(function_definition declarator: (pointer_declarator declarator: (function_declarator declarator: (identifier) @def)))`,
			`(declaration declarator: (function_declarator declarator: (identifier) @decl))`,
			`(field_declaration declarator: (function_declarator declarator: (field_identifier) @decl))`,
			`(class_specifier name: (type_identifier) @def body: (_))`,
			`(struct_specifier name: (type_identifier) @def body: (_))`,
			`(union_specifier name: (type_identifier) @def body: (_))`,
			`(enum_specifier name: (type_identifier) @def body: (_))`,
			`(class_specifier name: (type_identifier) @decl !body)`,
			`(struct_specifier name: (type_identifier) @decl !body)`,
			`(enumerator name: (identifier) @def)`,
			`(type_definition declarator: (type_identifier) @def)`,
			`(namespace_definition name: (namespace_identifier) @def)`,
			`(init_declarator declarator: (identifier) @def)`,
			`(declaration declarator: (identifier) @def)`,
			`(field_declaration declarator: (field_identifier) @def)`,
			`(parameter_declaration declarator: (identifier) @def)`,
			`(preproc_def name: (identifier) @def)`,
			`(preproc_function_def name: (identifier) @def)`,
			`(assignment_expression left: (identifier) @assign)`,
			`(assignment_expression left: (field_expression field: (field_identifier) @assign))`,
			`(update_expression argument: (identifier) @assign)`,
		},
		identKinds: []string{"identifier", "type_identifier", "field_identifier", "namespace_identifier"},
	},
	{
		lang:       types.LanguagePython,
		extensions: []string{".py", ".pyi"},
		tsLanguage: tree_sitter_python.Language,
		patterns: []string{
			`(function_definition name: (identifier) @def)`,
			`(class_definition name: (identifier) @def)`,
			`(parameters (identifier) @def)`,
			`(default_parameter name: (identifier) @def)`,
			`(typed_parameter (identifier) @def)`,
			`(assignment left: (identifier) @assign)`,
			`(assignment left: (attribute attribute: (identifier) @assign))`,
			`(augmented_assignment left: (identifier) @assign)`,
			`(for_statement left: (identifier) @assign)`,
		},
		identKinds: []string{"identifier"},
	},
	{
		lang:       types.LanguageJavaScript,
		extensions: []string{".js", ".jsm", ".mjs", ".cjs", ".jsx"},
		tsLanguage: tree_sitter_javascript.Language,
		patterns: []string{
			`(function_declaration name: (identifier) @def)`,
			`(generator_function_declaration name: (identifier) @def)`,
			`(class_declaration name: (identifier) @def)`,
			`(method_definition name: (property_identifier) @def)`,
			`(field_definition property: (property_identifier) @def)`,
			`(variable_declarator name: (identifier) @def)`,
			`(formal_parameters (identifier) @def)`,
			`(assignment_expression left: (identifier) @assign)`,
			`(assignment_expression left: (member_expression property: (property_identifier) @assign))`,
			`(augmented_assignment_expression left: (identifier) @assign)`,
			`(update_expression argument: (identifier) @assign)`,
		},
		identKinds: []string{"identifier", "property_identifier", "shorthand_property_identifier", "private_property_identifier"},
	},
	{
		lang:       types.LanguageTypeScript,
		extensions: []string{".ts", ".mts", ".cts"},
		tsLanguage: tree_sitter_typescript.LanguageTypescript,
		patterns:   typeScriptPatterns,
		identKinds: typeScriptIdentKinds,
	},
	{
		lang:       types.LanguageTypeScript,
		extensions: []string{".tsx"},
		tsLanguage: tree_sitter_typescript.LanguageTSX,
		patterns:   typeScriptPatterns,
		identKinds: typeScriptIdentKinds,
	},
	{
		lang:       types.LanguageJava,
		extensions: []string{".java"},
		tsLanguage: tree_sitter_java.Language,
		patterns: []string{
			`(method_declaration name: (identifier) @def)`,
			`(constructor_declaration name: (identifier) @def)`,
			`(class_declaration name: (identifier) @def)`,
			`(record_declaration name: (identifier) @def)`,
			`(interface_declaration name: (identifier) @def)`,
			`(enum_declaration name: (identifier) @def)`,
			`(enum_constant name: (identifier) @def)`,
			`(annotation_type_declaration name: (identifier) @def)`,
			`(variable_declarator name: (identifier) @def)`,
			`(formal_parameter name: (identifier) @def)`,
			`(assignment_expression left: (identifier) @assign)`,
			`(assignment_expression left: (field_access field: (identifier) @assign))`,
			`(update_expression (identifier) @assign)`,
		},
		identKinds: []string{"identifier", "type_identifier"},
	},
	{
		lang:       types.LanguageCSharp,
		extensions: []string{".cs"},
		tsLanguage: tree_sitter_csharp.Language,
		patterns: []string{
			`(method_declaration name: (identifier) @def)`,
			`(constructor_declaration name: (identifier) @def)`,
			`(class_declaration name: (identifier) @def)`,
			`(interface_declaration name: (identifier) @def)`,
			`(struct_declaration name: (identifier) @def)`,
			`(record_declaration name: (identifier) @def)`,
			`(enum_declaration name: (identifier) @def)`,
			`(enum_member_declaration name: (identifier) @def)`,
			`(property_declaration name: (identifier) @def)`,
			`(delegate_declaration name: (identifier) @def)`,
			`(namespace_declaration name: (identifier) @def)`,
			`(variable_declarator name: (identifier) @def)`,
			`(parameter name: (identifier) @def)`,
			`(assignment_expression left: (identifier) @assign)`,
			`(assignment_expression left: (member_access_expression name: (identifier) @assign))`,
		},
		identKinds: []string{"identifier"},
	},
	{
		lang:       types.LanguageRust,
		extensions: []string{".rs"},
		tsLanguage: tree_sitter_rust.Language,
		patterns: []string{
			`(function_item name: (identifier) @def)`,
			`(function_signature_item name: (identifier) @decl)`,
			`(struct_item name: (type_identifier) @def)`,
			`(enum_item name: (type_identifier) @def)`,
			`(union_item name: (type_identifier) @def)`,
			`(trait_item name: (type_identifier) @def)`,
			`(type_item name: (type_identifier) @def)`,
			`(mod_item name: (identifier) @def)`,
			`(const_item name: (identifier) @def)`,
			`(static_item name: (identifier) @def)`,
			`(macro_definition name: (identifier) @def)`,
			`(enum_variant name: (identifier) @def)`,
			`(field_declaration name: (field_identifier) @def)`,
			`(let_declaration pattern: (identifier) @def)`,
			`(parameter pattern: (identifier) @def)`,
			`(assignment_expression left: (identifier) @assign)`,
			`(assignment_expression left: (field_expression field: (field_identifier) @assign))`,
			`(compound_assignment_expr left: (identifier) @assign)`,
		},
		identKinds: []string{"identifier", "type_identifier", "field_identifier"},
	},
	{
		lang:       types.LanguagePHP,
		extensions: []string{".php", ".phtml"},
		tsLanguage: tree_sitter_php.LanguagePHP,
		patterns: []string{
			`(class_declaration name: (name) @def)`,
			`(interface_declaration name: (name) @def)`,
			`(trait_declaration name: (name) @def)`,
			`(enum_declaration name: (name) @def)`,
			`(function_definition name: (name) @def)`,
			`(method_declaration name: (name) @def)`,
			`(const_element (name) @def)`,
			`(property_element (variable_name (name) @def))`,
			`(simple_parameter name: (variable_name (name) @def))`,
			`(assignment_expression left: (variable_name (name) @assign))`,
			`(augmented_assignment_expression left: (variable_name (name) @assign))`,
		},
		identKinds: []string{"name"},
	},
	{
		lang:       types.LanguageZig,
		extensions: []string{".zig"},
		tsLanguage: tree_sitter_zig.Language,
		patterns: []string{
			`(function_declaration (identifier) @def)`,
			`(variable_declaration (identifier) @def)`,
			`(parameter (identifier) @def)`,
			`(container_field (identifier) @def)`,
			`(assignment_expression left: (identifier) @assign)`,
		},
		identKinds: []string{"identifier"},
	},
}

var typeScriptPatterns = []string{
	`(function_declaration name: (identifier) @def)`,
	`(generator_function_declaration name: (identifier) @def)`,
	`(function_signature name: (identifier) @decl)`,
	`(class_declaration name: (type_identifier) @def)`,
	`(abstract_class_declaration name: (type_identifier) @def)`,
	`(interface_declaration name: (type_identifier) @def)`,
	`(type_alias_declaration name: (type_identifier) @def)`,
	`(enum_declaration name: (identifier) @def)`,
	`(method_definition name: (property_identifier) @def)`,
	`(method_signature name: (property_identifier) @decl)`,
	`(abstract_method_signature name: (property_identifier) @decl)`,
	`(property_signature name: (property_identifier) @decl)`,
	`(public_field_definition name: (property_identifier) @def)`,
	`(variable_declarator name: (identifier) @def)`,
	`(required_parameter pattern: (identifier) @def)`,
	`(optional_parameter pattern: (identifier) @def)`,
	`(assignment_expression left: (identifier) @assign)`,
	`(assignment_expression left: (member_expression property: (property_identifier) @assign))`,
	`(augmented_assignment_expression left: (identifier) @assign)`,
	`(update_expression argument: (identifier) @assign)`,
}

var typeScriptIdentKinds = []string{"identifier", "type_identifier", "property_identifier", "shorthand_property_identifier", "private_property_identifier"}

// captureKinds maps capture names to the occurrence kind they produce
var captureKinds = map[string]types.OccurrenceKind{
	"def":    types.KindDefinition,
	"decl":   types.KindDeclaration,
	"assign": types.KindAssignment,
}

// compileQuery builds the grammar's query. The tree-sitter bindings do not
// report query errors reliably, so on failure each pattern is tried alone and
// only the ones the grammar accepts are kept.
func compileQuery(g grammar, language *tree_sitter.Language) *tree_sitter.Query {
	query, _ := tree_sitter.NewQuery(language, strings.Join(g.patterns, "\n"))
	if query != nil {
		return query
	}

	valid := make([]string, 0, len(g.patterns))
	for _, p := range g.patterns {
		q, _ := tree_sitter.NewQuery(language, p)
		if q == nil {
			debug.LogBuild("tree-sitter %s: dropping pattern %s\n", g.lang, p)
			continue
		}
		q.Close()
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return nil
	}
	query, _ = tree_sitter.NewQuery(language, strings.Join(valid, "\n"))
	return query
}
