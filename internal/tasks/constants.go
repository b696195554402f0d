package tasks

// Default entry points, relative to the training repository checkout.
const (
	DefaultTrainEntry = "scripts/train_model.py"
	DefaultEvalEntry  = "scripts/evaluate_model.py"
)

// Model classes and modality builders used by the built-in presets.
const (
	ModelClassMistralLMM = "MistralLMMForCausalLM"
	ModelClassLlamaLMM   = "LlamaLMMForCausalLM"

	ModalityMolecule2D = "molecule_2d"
	ModalityMolecule3D = "molecule_3d"
)

// MoleculeToken is the placeholder the modality builder replaces with
// projected molecule embeddings.
const MoleculeToken = "<molecule_2d>"
