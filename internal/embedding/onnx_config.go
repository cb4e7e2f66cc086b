package embedding

// ONNXConfig describes an audio embedding model with a single float32 input of shape
// [1, frame samples] and a single output of shape [1, Dimensions].
type ONNXConfig struct {
	ModelPath    string
	Dimensions   int
	SampleRate   int
	FrameSeconds float64
	HopSeconds   float64
	InputName    string
	OutputName   string
}

func (c ONNXConfig) withDefaults() ONNXConfig {
	if c.FrameSeconds <= 0 {
		c.FrameSeconds = 1.0
	}
	if c.HopSeconds <= 0 {
		c.HopSeconds = 0.5
	}
	if c.InputName == "" {
		c.InputName = "audio"
	}
	if c.OutputName == "" {
		c.OutputName = "embedding"
	}
	return c
}
