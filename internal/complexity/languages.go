package complexity

import (
	sitter "github.com/smacker/go-tree-sitter"
)

var pythonListFuncs = set("append", "count", "extend", "index", "insert", "pop", "remove", "reverse", "sort")

var pythonStrFuncs = set("join", "split", "strip", "rstrip", "lstrip", "startswith", "upper", "lower")

var javascriptListFuncs = set(
	"of", "concat", "copyWithin", "entries", "every", "fill", "filter", "find", "findIndex", "forEach", "includes", "indexOf",
	"join", "keys", "lastIndexOf", "map", "pop", "push", "reduce", "reduceRight", "reverse", "shift", "slice", "some", "sort",
	"splice", "toLocaleString", "toSource", "toString", "unshift", "values",
)

var javascriptStrFuncs = set(
	"fromCharCode", "fromCodePoint", "anchor", "big", "blink", "bold", "charAt", "charCodeAt", "codePointAt", "concat", "endsWith",
	"fixed", "fontcolor", "fontsize", "includes", "indexOf", "italics", "lastIndexOf", "link", "localeCompare", "match", "normalize",
	"padEnd", "padStart", "quote", "repeat", "replace", "search", "slice", "small", "split", "startsWith", "strike", "sub", "substr",
	"substring", "sup", "toLocaleLowerCase", "toLocaleUpperCase", "toLowerCase", "toSource", "toString", "toUpperCase", "trim",
	"trimLeft", "trimRight", "valueOf", "raw",
)

func visitPython(node *sitter.Node, source []byte, features map[string]int) {
	switch node.Type() {
	case "function_definition":
		features[FeatureUserFunc]++
	case "if_statement":
		if isPythonBoolean(node.ChildByFieldName("condition")) {
			features[FeatureBooleanConditionals]++
		} else {
			features[FeatureConditionals]++
		}
	case "for_statement", "while_statement":
		features[FeatureLoops]++
	case "assignment":
		if right := node.ChildByFieldName("right"); right != nil && right.Type() == "list" {
			features[FeatureLists]++
		}
	case "call":
		// only calls used as a statement, so x = s.strip() is not an operation
		if parent := node.Parent(); parent == nil || parent.Type() != "expression_statement" {
			return
		}
		fn := node.ChildByFieldName("function")
		if fn == nil || fn.Type() != "attribute" {
			return
		}
		attr := fn.ChildByFieldName("attribute")
		if attr == nil {
			return
		}
		countMethod(attr.Content(source), pythonListFuncs, pythonStrFuncs, features)
	}
}

func isPythonBoolean(condition *sitter.Node) bool {
	for condition != nil && condition.Type() == "parenthesized_expression" {
		condition = condition.NamedChild(0)
	}
	if condition == nil {
		return false
	}
	switch condition.Type() {
	case "boolean_operator", "not_operator":
		return true
	default:
		return false
	}
}

func visitJavaScript(node *sitter.Node, source []byte, features map[string]int) {
	switch node.Type() {
	case "function_declaration":
		features[FeatureUserFunc]++
	case "for_statement", "for_in_statement", "while_statement", "do_statement":
		features[FeatureLoops]++
	case "if_statement":
		if isJavaScriptLogical(node.ChildByFieldName("condition")) {
			features[FeatureBooleanConditionals]++
		} else {
			features[FeatureConditionals]++
		}
	case "switch_statement":
		features[FeatureConditionals]++
	case "array":
		features[FeatureLists]++
	case "identifier", "property_identifier":
		if isJavaScriptBinding(node) {
			return
		}
		countMethod(node.Content(source), javascriptListFuncs, javascriptStrFuncs, features)
	}
}

// isJavaScriptBinding reports whether an identifier names a declaration, a parameter or an
// object key rather than referring to a value.
func isJavaScriptBinding(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}

	var field string
	switch parent.Type() {
	case "formal_parameters":
		return true
	case "variable_declarator", "function_declaration", "function", "class_declaration", "method_definition":
		field = "name"
	case "pair":
		field = "key"
	default:
		return false
	}

	named := parent.ChildByFieldName(field)
	return named != nil && named.StartByte() == node.StartByte() && named.EndByte() == node.EndByte()
}

func isJavaScriptLogical(condition *sitter.Node) bool {
	for condition != nil && condition.Type() == "parenthesized_expression" {
		condition = condition.NamedChild(0)
	}
	if condition == nil || condition.Type() != "binary_expression" {
		return false
	}
	operator := condition.ChildByFieldName("operator")
	if operator == nil {
		return false
	}
	switch operator.Type() {
	case "&&", "||", "??":
		return true
	default:
		return false
	}
}

// countMethod prefers the list bucket when a name is both a list and a string method.
func countMethod(name string, listFuncs, strFuncs map[string]struct{}, features map[string]int) {
	if _, ok := listFuncs[name]; ok {
		features[FeatureListOps]++
		return
	}
	if _, ok := strFuncs[name]; ok {
		features[FeatureStrOps]++
	}
}

func set(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, value := range values {
		out[value] = struct{}{}
	}
	return out
}
