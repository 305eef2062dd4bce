package visualizer

// Options configures the visualization output.
type Options struct {
	// ShowFlags labels transitions with the flag they consume
	ShowFlags bool

	// ShowOperations labels transitions with their operation
	ShowOperations bool

	// ShowDescriptions adds state descriptions
	ShowDescriptions bool

	// Variant selects the stateDiagram syntax version
	Variant string

	// HighlightPath highlights a specific state path through the diagram
	HighlightPath []string

	// Fenced wraps the diagram in a ```mermaid block
	Fenced bool
}

// DefaultOptions returns sensible defaults for visualization.
func DefaultOptions() Options {
	return Options{
		ShowFlags:        true,
		ShowOperations:   true,
		ShowDescriptions: true,
		Variant:          "v2",
		Fenced:           true,
	}
}

// WithShowFlags enables/disables flag labels.
func (o Options) WithShowFlags(show bool) Options {
	o.ShowFlags = show

	return o
}

// WithShowOperations enables/disables operation labels.
func (o Options) WithShowOperations(show bool) Options {
	o.ShowOperations = show

	return o
}

// WithVariant sets the stateDiagram syntax version.
func (o Options) WithVariant(variant string) Options {
	o.Variant = variant

	return o
}

// WithHighlightPath sets states to highlight.
func (o Options) WithHighlightPath(path []string) Options {
	o.HighlightPath = path

	return o
}

// WithFenced enables/disables the markdown fence.
func (o Options) WithFenced(fenced bool) Options {
	o.Fenced = fenced

	return o
}
