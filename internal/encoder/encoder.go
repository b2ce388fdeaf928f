// Package encoder implements a small feed-forward autoencoder in plain Go.
// The encoder half compresses a fixed-length feature vector into a latent
// vector; the mirrored decoder half reconstructs the (supervision) vector.
// Hidden layers use ReLU, the output layer is linear, and training is plain
// per-sample gradient descent from a seeded source, so a given seed always
// produces the same model.
package encoder

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
)

// Autoencoder is a mirrored multi-layer perceptron. sizes holds every layer
// width from input through the latent bottleneck back out to the
// reconstruction, e.g. [12, 8, 4, 8, 12] for hidden geometry [8, 4].
type Autoencoder struct {
	sizes   []int
	weights [][][]float64 // weights[l][i][j] maps layer l unit j to layer l+1 unit i
	biases  [][]float64
	latent  int // index of the bottleneck layer in sizes
}

// DefaultHidden returns the standard hidden geometry clamped to the input
// width, so narrow feature sets still get a valid (if uncompressed) stack.
func DefaultHidden(inputSize int) []int {
	hidden := []int{128, 64, 32}
	for i := range hidden {
		if hidden[i] > inputSize {
			hidden[i] = inputSize
		}
	}
	return hidden
}

// New builds an autoencoder for inputSize-wide vectors with the given hidden
// layer widths, the last of which is the latent size. Weights are
// initialized from seed with per-layer scale 1/sqrt(fan-in).
func New(inputSize int, hidden []int, seed int64) (*Autoencoder, error) {
	if inputSize <= 0 {
		return nil, fmt.Errorf("new autoencoder: input size %d", inputSize)
	}
	if len(hidden) == 0 {
		return nil, fmt.Errorf("new autoencoder: no hidden layers")
	}
	for _, h := range hidden {
		if h <= 0 {
			return nil, fmt.Errorf("new autoencoder: hidden layer size %d", h)
		}
	}

	sizes := make([]int, 0, 2*len(hidden)+1)
	sizes = append(sizes, inputSize)
	sizes = append(sizes, hidden...)
	for i := len(hidden) - 2; i >= 0; i-- {
		sizes = append(sizes, hidden[i])
	}
	sizes = append(sizes, inputSize)

	a := &Autoencoder{
		sizes:  sizes,
		latent: len(hidden),
	}
	rng := rand.New(rand.NewSource(seed))
	for l := 0; l < len(sizes)-1; l++ {
		scale := 1 / math.Sqrt(float64(sizes[l]))
		a.weights = append(a.weights, randomMatrix(rng, sizes[l+1], sizes[l], scale))
		a.biases = append(a.biases, make([]float64, sizes[l+1]))
	}
	return a, nil
}

func randomMatrix(rng *rand.Rand, rows, cols int, scale float64) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = (rng.Float64() - 0.5) * 2 * scale
		}
	}
	return m
}

// InputSize returns the width of input (and reconstruction) vectors.
func (a *Autoencoder) InputSize() int { return a.sizes[0] }

// LatentSize returns the width of the bottleneck layer.
func (a *Autoencoder) LatentSize() int { return a.sizes[a.latent] }

// forward runs a full pass and returns every layer's activations.
func (a *Autoencoder) forward(x []float64) [][]float64 {
	acts := make([][]float64, len(a.sizes))
	acts[0] = x
	for l := 0; l < len(a.weights); l++ {
		out := make([]float64, a.sizes[l+1])
		last := l == len(a.weights)-1
		for i := range out {
			sum := a.biases[l][i]
			for j, v := range acts[l] {
				sum += a.weights[l][i][j] * v
			}
			if last {
				out[i] = sum // linear output layer
			} else {
				out[i] = relu(sum)
			}
		}
		acts[l+1] = out
	}
	return acts
}

// Encode compresses x to its latent vector.
func (a *Autoencoder) Encode(x []float64) ([]float64, error) {
	if len(x) != a.sizes[0] {
		return nil, fmt.Errorf("encode: input has %d values, model expects %d", len(x), a.sizes[0])
	}
	acts := a.forward(x)
	out := make([]float64, len(acts[a.latent]))
	copy(out, acts[a.latent])
	return out, nil
}

// Reconstruct runs the full encode-decode pass.
func (a *Autoencoder) Reconstruct(x []float64) ([]float64, error) {
	if len(x) != a.sizes[0] {
		return nil, fmt.Errorf("reconstruct: input has %d values, model expects %d", len(x), a.sizes[0])
	}
	acts := a.forward(x)
	out := make([]float64, len(acts[len(acts)-1]))
	copy(out, acts[len(acts)-1])
	return out, nil
}

// Train fits the network with per-sample gradient descent. targets may be
// nil for plain self-reconstruction; otherwise targets[i] is the supervision
// vector for inputs[i] and must match the input width. Returns the mean
// reconstruction error over the final epoch.
func (a *Autoencoder) Train(inputs, targets [][]float64, epochs int, lr float64) (float64, error) {
	if len(inputs) == 0 {
		return 0, fmt.Errorf("train: no samples")
	}
	if targets == nil {
		targets = inputs
	}
	if len(targets) != len(inputs) {
		return 0, fmt.Errorf("train: %d inputs but %d targets", len(inputs), len(targets))
	}
	for i := range inputs {
		if len(inputs[i]) != a.sizes[0] {
			return 0, fmt.Errorf("train: sample %d has %d values, model expects %d", i, len(inputs[i]), a.sizes[0])
		}
		if len(targets[i]) != a.sizes[len(a.sizes)-1] {
			return 0, fmt.Errorf("train: target %d has %d values, model expects %d", i, len(targets[i]), a.sizes[len(a.sizes)-1])
		}
	}
	if epochs <= 0 {
		epochs = 1
	}

	var epochErr float64
	for e := 0; e < epochs; e++ {
		epochErr = 0
		for s := range inputs {
			acts := a.forward(inputs[s])
			epochErr += reconstructionError(targets[s], acts[len(acts)-1])
			a.backprop(acts, targets[s], lr)
		}
		epochErr /= float64(len(inputs))
	}
	return epochErr, nil
}

// backprop updates weights and biases from one sample's activations.
func (a *Autoencoder) backprop(acts [][]float64, target []float64, lr float64) {
	last := len(a.weights) - 1

	// Output delta for the linear layer under squared error.
	delta := make([]float64, len(target))
	out := acts[len(acts)-1]
	for i := range delta {
		delta[i] = out[i] - target[i]
	}

	for l := last; l >= 0; l-- {
		var prev []float64
		if l > 0 {
			// ReLU derivative: the activation itself tells us whether the
			// unit fired.
			prev = make([]float64, a.sizes[l])
			for j := range prev {
				if acts[l][j] <= 0 {
					continue
				}
				var sum float64
				for i := range delta {
					sum += delta[i] * a.weights[l][i][j]
				}
				prev[j] = sum
			}
		}
		for i := range delta {
			step := lr * delta[i]
			for j, v := range acts[l] {
				a.weights[l][i][j] -= step * v
			}
			a.biases[l][i] -= step
		}
		delta = prev
	}
}

func relu(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// reconstructionError is the root-mean-square difference between a target
// vector and its reconstruction.
func reconstructionError(target, got []float64) float64 {
	if len(target) == 0 {
		return 0
	}
	var sumSq float64
	for i := range target {
		diff := target[i] - got[i]
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(target)))
}

type autoencoderJSON struct {
	Sizes   []int         `json:"sizes"`
	Weights [][][]float64 `json:"weights"`
	Biases  [][]float64   `json:"biases"`
}

// MarshalJSON serializes the full network so a stored model reproduces
// training-time geometry and weights exactly.
func (a *Autoencoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(autoencoderJSON{Sizes: a.sizes, Weights: a.weights, Biases: a.biases})
}

func (a *Autoencoder) UnmarshalJSON(data []byte) error {
	var raw autoencoderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode autoencoder: %w", err)
	}
	if len(raw.Sizes) < 3 || len(raw.Sizes)%2 == 0 {
		return fmt.Errorf("decode autoencoder: %d layer sizes", len(raw.Sizes))
	}
	if len(raw.Weights) != len(raw.Sizes)-1 || len(raw.Biases) != len(raw.Sizes)-1 {
		return fmt.Errorf("decode autoencoder: layer count mismatch")
	}
	a.sizes = raw.Sizes
	a.weights = raw.Weights
	a.biases = raw.Biases
	a.latent = (len(raw.Sizes) - 1) / 2
	return nil
}
