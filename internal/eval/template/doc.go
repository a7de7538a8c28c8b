// Package template renders report templates with embedded directives.
//
// A template is plain text containing zero or more directives:
//
//	{{path}}                          variable reference (dotted or bare)
//	{{#each path}} ... {{/each}}      iteration over a list
//	{{#if path}} ... {{/if}}          conditional block
//
// Directives are resolved in a fixed order over the whole text: iteration
// blocks first, then conditional blocks, then bare variables. Inside an
// iteration body, {{field}} refers to the current record item, {{@index}}
// to its original position and {{this}} to a scalar item. A {{#if}} inside
// an iteration body whose path names a field of the current item is tested
// against that item; any other directive is left for the outer passes.
//
// Example usage:
//
//	engine := template.NewEngine()
//
//	data := map[string]interface{}{
//	    "store": "北京01店",
//	    "items": []interface{}{
//	        map[string]interface{}{"name": "A", "qty": 3.0},
//	        map[string]interface{}{"name": "B", "qty": 2.5},
//	    },
//	}
//
//	out := engine.Render("# {{store}} {{TODAY}}\n{{#each items}}\n- {{name}}: {{qty}}\n{{/each}}", data)
//	// # 北京01店 2024-01-03
//	// - A: 3
//	// - B: 2.50
//
// Built-in variables (TODAY, YESTERDAY, WEEK_START, WEEK_END, NOW) are
// computed from the render instant; caller data with the same name wins.
//
// Rendering never fails. Unresolved variables stay in the output verbatim,
// iteration over a missing or non-list value renders nothing, and openers
// without a matching closer are left as literal text.
package template
