package dataset

// Chat roles used in conversation records.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MoleculeToken is the placeholder the modality builder replaces with the
// encoded molecule graph.
const MoleculeToken = "<molecule_2d>"

// SystemPrompt opens every name conversion conversation.
const SystemPrompt = "You are a chemist. Please follow the instructions to convert the structure to the corresponding name."

// FewShotPrompt introduces the worked examples in test prompts.
const FewShotPrompt = "Here are some examples of name conversion."

// Template is one question/answer phrasing. <INPUT> and <OUTPUT> are
// replaced by the molecule and the expected answer.
type Template struct {
	Input  string
	Output string
}

// I2STemplates ask for the SMILES of an IUPAC name.
var I2STemplates = []Template{
	{"<INPUT> is the IUPAC name of a molecule. Please give its SMILES representation.", "<OUTPUT>"},
	{"Convert the IUPAC name of a molecule <INPUT> into SMILES representation.", "<OUTPUT>"},
	{"What is the SMILES representation of the molecule with IUPAC name <INPUT> ?", "<OUTPUT>"},
	{"Can you give the SMILES notation of the molecule <INPUT> ?", "Sure. <OUTPUT>"},
	{"Please write the SMILES representation of the molecule <INPUT> .", "<OUTPUT>"},
	{"<INPUT> The above is the IUPAC name of a molecule. Write its SMILES notation.", "<OUTPUT>"},
	{"The IUPAC name of a certain molecule is <INPUT> . Can you provide its SMILES representation?", "The SMILES representation is <OUTPUT> ."},
	{"Please identify the SMILES representation of the molecule named <INPUT> .", "The molecule's SMILES representation is <OUTPUT> ."},
	{"For the molecule with <INPUT> as the IUPAC name, what is the corresponding SMILES representation?", "The corresponding SMILES representation is <OUTPUT> ."},
	{"What is the SMILES notation for <INPUT> ?", "It's <OUTPUT> ."},
	{"Could you provide the SMILES for <INPUT> ?", "Of course. It's <OUTPUT> ."},
	{"Can you tell me the SMILES representation for the molecule <INPUT> ?", "Sure. <OUTPUT> ."},
	{"What is the SMILES representation for <INPUT> ?", "<OUTPUT>"},
}

// S2FTemplates ask for the molecular formula of a structure.
var S2FTemplates = []Template{
	{"<INPUT> is the representation of a molecule. What is its molecular formula?", "<OUTPUT>"},
	{"Convert the representation of a molecule <INPUT> into molecular formula.", "<OUTPUT>"},
	{"What is the formula of the molecule <INPUT> ?", "<OUTPUT>"},
	{"Can you give the molecular molecular formula of <INPUT> ?", "Sure. <OUTPUT>"},
	{"Please write the molecular formula of the molecule <INPUT> .", "<OUTPUT>"},
	{"Given the representation <INPUT>, what would be its molecular formula?", "It is <OUTPUT> ."},
	{"The representation <INPUT> represents a specific molecule. Can you reveal its molecular formula?", "Sure. It's <OUTPUT> ."},
	{"Considering the code <INPUT>, can you determine the corresponding molecular formula?", "It would be <OUTPUT> ."},
	{"Can you tell me the molecular formula of <INPUT> ?", "<OUTPUT>"},
	{"I'd like to know the molecular formula of <INPUT> . Can you tell me?", "Sure. It's <OUTPUT> ."},
	{"What is the molecular formula for the molecule denoted by <INPUT> ?", "<OUTPUT>"},
	{"What is the molecular formula of <INPUT> ?", "The molecular formula is <OUTPUT> ."},
	{"Please provide the molecular formula for <INPUT> .", "<OUTPUT>"},
}
