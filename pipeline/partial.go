package pipeline

// PartialPipeline is one section of a gst pipeline, such as the source side
// feeding the element or the output side it pushes into.
type PartialPipeline interface {
	// Prepare adds the section's elements; nothing is built yet
	Prepare(pipeline *Pipeline) error
	// Build links the section once its elements exist in the gst pipeline
	Build(pipeline *Pipeline) error
}
