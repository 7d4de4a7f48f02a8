package synth

import (
	"fmt"
	"strings"

	"github.com/Strikezor/SDMaker/internal/intake"
	"github.com/Strikezor/SDMaker/internal/schema"
)

// SynthesisSystemPrompt is the heavy-tier mandate for document generation.
const SynthesisSystemPrompt = `You are an expert AI Solution Document Architect.

YOUR MANDATE:
1. **Solution Synthesis:** You will be provided with various inputs: a Regulatory Document, a Business Requirements Document (BRD/URF), and a Solution Document (SD) Template structure provided in XML format. Your core task is to synthesize these inputs into a final Solution Document.
2. **Strict Adherence to Template:** The output **must** follow the exact format, structure, and hierarchy defined in the provided XML SD Template. Do not deviate from the structure of the template. Extract the section headers from the XML tags.
3. **Synthesis Logic:** You must map the business requirements from the BRD/URF to the regulatory constraints in the Regulatory Document.
4. **STRICT GROUNDING (NO HALLUCINATION):** You must ONLY use the information explicitly provided in the uploaded documents and supplied answers. Do not invent, assume, or hallucinate.
5. **Handling Missing Info:** If the XML template asks for a specific detail that is NOT present in any of the provided material, you must explicitly state: "Information not provided in source documents."
6. **Formatting:** Professional, technical tone. Use Markdown (bolding, lists, headings).`

// RefinementSystemPrompt is the heavy-tier mandate for document revision.
const RefinementSystemPrompt = `You are an expert AI Solution Document Architect.
Your task is to revise the provided Solution Document based strictly on the user's instructions.
Maintain the professional tone, Markdown formatting, and overall structure unless instructed otherwise.
Return ONLY the revised document text. Do not include introductory or concluding remarks.`

// ValidationPrompt builds the fast-tier classification prompt for one
// intake category.
func ValidationPrompt(category intake.Category) string {
	label := category.Label()
	return fmt.Sprintf(`You are an expert document classifier.
Task: Determine if the provided text is a relevant '%s' document.
- If it is relevant or contains elements of a %s document, respond EXACTLY with the word: VALID
- If it is completely irrelevant (e.g., a recipe, random code, a personal letter, unrelated topic), respond with: INVALID: [Brief 1-sentence reason]`, label, label)
}

// BuildGapPrompt builds the fast-tier prompt that cross-references the
// template against the supplied intake text and asks for unresolved
// sections as a JSON array.
func BuildGapPrompt(tpl *schema.Template, regText, brdText string) string {
	var sb strings.Builder
	sb.WriteString(`You are a precise business analyst.
Task: Review the SD Template (XML) against the provided input documents.
Identify the template sections for which the inputs contain no usable information.

- If ALL sections can be filled from the inputs, respond EXACTLY with the word: NONE
- Otherwise respond with ONLY a JSON array, one object per missing section:
  [{"section_id": "<template tag name>", "question": "<one clarifying question for the user>"}]
- section_id must be a tag name that appears in the template. Do not generate the SD.

Template XML:
`)
	sb.WriteString(tpl.Raw)
	sb.WriteString("\n\nInput Documents:\n[Regulatory]: ")
	sb.WriteString(regText)
	sb.WriteString("\n[BRD/URF]: ")
	sb.WriteString(brdText)
	return sb.String()
}

// BuildSynthesisPrompt assembles the heavy-tier user message from the
// resolved synthesis context.
func BuildSynthesisPrompt(tpl *schema.Template, sctx *Context) string {
	var sb strings.Builder
	sb.WriteString(`I am providing several key documents below to be synthesized into a single Solution Document (SD).

Please synthesize them exactly according to the provided system instructions and strictly follow the layout defined in the XML SD Template provided below.

---
### SOLUTION DOCUMENT (SD) TEMPLATE STRUCTURE (MANDATORY OUTPUT FORMAT - XML):
`)
	sb.WriteString(tpl.Raw)
	sb.WriteString("\n\n---\n### INPUT MATERIAL:\n")
	sb.WriteString(sctx.Text)
	return sb.String()
}

// BuildRefinementPrompt assembles the heavy-tier revision message.
func BuildRefinementPrompt(current, instruction string) string {
	return fmt.Sprintf("### CURRENT DOCUMENT:\n%s\n\n### REVISION INSTRUCTIONS:\n%s", current, instruction)
}
