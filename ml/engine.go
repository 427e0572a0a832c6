// engine.go - Schmale Grenze zu den extern gelieferten Execution-Engines
// Die Engines rechnen; diese Schicht beschreibt nur, was jede Engine anbieten muss.
package ml

import "github.com/edgerun/edgerun/ml/alloc"

// Engine is a loaded tensor-graph runtime (graph, mobile, frozen-graph, dsp
// and relay-vm families). Implementations are supplied by native adapters.
type Engine interface {
	// Inputs and Outputs describe the tensors as declared by the artifact.
	// Unknown dimensions are reported as DimUnknown.
	Inputs() []TensorDescriptor
	Outputs() []TensorDescriptor

	// SetInput binds row-major data to input index. The engine may keep a
	// reference to data until the next SetInput for that index.
	SetInput(index int, shape Shape, data []byte) error

	// Run executes the bound inputs synchronously.
	Run() error

	// Output returns the current shape and the engine-owned buffer of an
	// output. The buffer is only valid until the next Run.
	Output(index int) (Shape, []byte, error)

	Close() error
}

// InputReader is implemented by engines that can return bound input data.
type InputReader interface {
	Input(index int) ([]byte, error)
}

// WeightLister is implemented by engines that expose their parameters.
type WeightLister interface {
	Weights() []TensorDescriptor
}

// ThreadSetter is implemented by engines with a tunable thread pool.
type ThreadSetter interface {
	SetThreadCount(n int) error
}

// AffinitySetter is implemented by engines that can pin worker threads.
type AffinitySetter interface {
	SetCPUAffinity(enabled bool) error
}

// AllocatorUser is implemented by engines whose internal buffers can be
// routed through caller supplied allocation primitives.
type AllocatorUser interface {
	UseAllocator(a *alloc.Allocator) error
}

// Predictor is a loaded decision-tree predictor (tree family). It consumes
// CSR batches and writes NumRow*NumOutputGroup scores to out.
type Predictor interface {
	NumFeature() int
	NumOutputGroup() int
	Predict(batch *CSRBatch, out []float32) error
	Close() error
}
