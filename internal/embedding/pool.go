package embedding

// Frames splits samples into windows of size frame advancing by hop. A clip shorter than
// one frame yields a single zero-padded window; a trailing partial window is dropped.
func Frames(samples []float32, frame, hop int) [][]float32 {
	if frame <= 0 || len(samples) == 0 {
		return nil
	}
	if hop <= 0 {
		hop = frame
	}
	if len(samples) < frame {
		w := make([]float32, frame)
		copy(w, samples)
		return [][]float32{w}
	}
	var out [][]float32
	for start := 0; start+frame <= len(samples); start += hop {
		out = append(out, samples[start:start+frame])
	}
	return out
}

// MeanPool averages per-window embeddings into one vector.
func MeanPool(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	sum := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, len(sum))
	n := float64(len(vectors))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out
}
