package dash

// Component is one node of a page layout. The browser-side runtime turns the
// tree into DOM elements; Props are applied as element properties, with
// "children" holding text content and "style" a map of CSS properties.
type Component struct {
	Type     string         `json:"type"`
	ID       string         `json:"id,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
	Children []Component    `json:"children,omitempty"`
}

// WithID returns a copy of c with its ID set.
func (c Component) WithID(id string) Component {
	c.ID = id
	return c
}

// WithStyle returns a copy of c with the given CSS properties merged into its style.
func (c Component) WithStyle(style map[string]string) Component {
	props := make(map[string]any, len(c.Props)+1)
	for k, v := range c.Props {
		props[k] = v
	}
	merged := map[string]string{}
	if existing, ok := props["style"].(map[string]string); ok {
		for k, v := range existing {
			merged[k] = v
		}
	}
	for k, v := range style {
		merged[k] = v
	}
	props["style"] = merged
	c.Props = props
	return c
}

// WithProp returns a copy of c with a single property set.
func (c Component) WithProp(name string, value any) Component {
	props := make(map[string]any, len(c.Props)+1)
	for k, v := range c.Props {
		props[k] = v
	}
	props[name] = value
	c.Props = props
	return c
}

// IDs returns the ids of c and all its descendants, depth first.
func (c Component) IDs() []string {
	var ids []string
	if c.ID != "" {
		ids = append(ids, c.ID)
	}
	for _, child := range c.Children {
		ids = append(ids, child.IDs()...)
	}
	return ids
}

func element(tag string, children []Component) Component {
	return Component{Type: tag, Children: children}
}

func textElement(tag, text string) Component {
	return Component{Type: tag, Props: map[string]any{"children": text}}
}

// Div groups children in a block element.
func Div(children ...Component) Component { return element("div", children) }

// H1 is a top level heading.
func H1(text string) Component { return textElement("h1", text) }

// H2 is a second level heading.
func H2(text string) Component { return textElement("h2", text) }

// P is a paragraph of text.
func P(text string) Component { return textElement("p", text) }

// Button is a clickable button; its "n_clicks" property counts clicks.
func Button(id, label string) Component {
	return Component{Type: "button", ID: id, Props: map[string]any{"children": label, "n_clicks": 0}}
}

// TextInput is a single line text field; its "value" property holds the text.
func TextInput(id, value string) Component {
	return Component{Type: "input", ID: id, Props: map[string]any{"value": value}}
}

// Dropdown is a select element over options; its "value" property holds the selection.
func Dropdown(id string, options []string, value string) Component {
	return Component{Type: "dropdown", ID: id, Props: map[string]any{"options": options, "value": value}}
}

// Graph renders a Figure placed in its "figure" property.
func Graph(id string) Component {
	return Component{Type: "graph", ID: id}
}
