package pngmeta

import (
	"strings"
)

// Node types whose first widget value holds free prompt text.
var promptNodeTypes = map[string]struct{}{
	"CLIPTextEncode":          {},
	"CR Prompt Text":          {},
	"ImpactWildcardProcessor": {},
	"Textbox":                 {},
	"easy showAnything":       {},
	"StringFunction":          {},
	"Text Multiline":          {},
}

var negativeIndicators = []string{
	"worst quality", "low quality", "bad", "ugly", "blurry",
	"distorted", "deformed", "amateur", "poor quality",
}

var positiveIndicators = []string{
	"masterpiece", "best quality", "high quality", "detailed",
	"professional", "photorealistic", "stunning", "beautiful",
}

// structurePrompts distills positive/negative prompt text and sampler
// parameters from the raw graph documents. The workflow graph is tried
// first; the prompt graph fills gaps and supplies parameters.
func structurePrompts(prompt, workflow map[string]any) map[string]any {
	out := map[string]any{
		"positive":          nil,
		"negative":          nil,
		"parameters":        map[string]any{},
		"extraction_method": "unknown",
	}

	if workflow != nil {
		pos, neg := promptsFromGraph(workflow)
		if pos != "" {
			out["positive"] = pos
		}
		if neg != "" {
			out["negative"] = neg
		}
		if pos != "" || neg != "" {
			out["extraction_method"] = "workflow"
		}
	}

	if prompt != nil {
		pos, neg := promptsFromGraph(prompt)
		if out["positive"] == nil && pos != "" {
			out["positive"] = pos
			out["extraction_method"] = mixMethod(out["extraction_method"].(string))
		}
		if out["negative"] == nil && neg != "" {
			out["negative"] = neg
			out["extraction_method"] = mixMethod(out["extraction_method"].(string))
		}
		out["parameters"] = generationParameters(prompt)
	}

	return out
}

func mixMethod(current string) string {
	if current == "unknown" {
		return "prompt"
	}
	return "mixed"
}

// promptsFromGraph handles both graph shapes: an editor export with a
// "nodes" array, and the flat execution graph keyed by node id.
func promptsFromGraph(graph map[string]any) (positive, negative string) {
	if nodes, ok := graph["nodes"].([]any); ok {
		return promptsFromNodes(nodes)
	}

	for _, raw := range graph {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		inputs, _ := node["inputs"].(map[string]any)
		if inputs == nil {
			continue
		}
		text, ok := inputs["text"].(string)
		if !ok {
			if text, ok = inputs["prompt"].(string); !ok {
				continue
			}
		}
		classType, _ := node["class_type"].(string)
		if _, isPrompt := promptNodeTypes[classType]; !isPrompt && classType != "" {
			continue
		}
		if positive == "" && looksPositive(text) {
			positive = text
		} else if negative == "" && looksNegative(text) {
			negative = text
		}
	}
	return positive, negative
}

func promptsFromNodes(nodes []any) (positive, negative string) {
	for _, raw := range nodes {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title, _ := node["title"].(string)
		title = strings.ToLower(title)
		widgets, _ := node["widgets_values"].([]any)
		text := firstString(widgets)

		// Node titles beat heuristics when the author labeled them.
		switch {
		case strings.Contains(title, "positive") && strings.Contains(title, "prompt"):
			if positive == "" && text != "" {
				positive = text
			}
			continue
		case strings.Contains(title, "negative") && strings.Contains(title, "prompt"):
			if negative == "" && text != "" {
				negative = text
			}
			continue
		}

		nodeType, _ := node["type"].(string)
		if _, ok := promptNodeTypes[nodeType]; !ok || text == "" {
			continue
		}
		if positive == "" && looksPositive(text) {
			positive = text
		} else if negative == "" && looksNegative(text) {
			negative = text
		}
	}
	return positive, negative
}

func firstString(widgets []any) string {
	if len(widgets) == 0 {
		return ""
	}
	if s, ok := widgets[0].(string); ok {
		return s
	}
	return ""
}

func looksPositive(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range negativeIndicators {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	for _, phrase := range positiveIndicators {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return len(text) > 50
}

func looksNegative(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, phrase := range negativeIndicators {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	if len(text) < 100 {
		for _, word := range []string{"bad", "worst", "low", "poor"} {
			if strings.Contains(lower, word) {
				return true
			}
		}
	}
	return false
}

// generationParameters pulls sampler settings and model names out of the
// execution graph.
func generationParameters(prompt map[string]any) map[string]any {
	params := map[string]any{}
	var loras []map[string]any

	for _, raw := range prompt {
		node, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		inputs, _ := node["inputs"].(map[string]any)
		if inputs == nil {
			continue
		}
		classType, _ := node["class_type"].(string)

		switch classType {
		case "KSampler":
			setIfPresent(params, "steps", inputs["steps"])
			setIfPresent(params, "cfg_scale", inputs["cfg"])
			setIfPresent(params, "sampler", inputs["sampler_name"])
			setIfPresent(params, "scheduler", inputs["scheduler"])
			setIfPresent(params, "seed", inputs["seed"])
		case "CheckpointLoaderSimple":
			setIfPresent(params, "model", inputs["ckpt_name"])
		case "LoraLoader":
			loras = append(loras, map[string]any{
				"name":           inputs["lora_name"],
				"model_strength": inputs["strength_model"],
				"clip_strength":  inputs["strength_clip"],
			})
		}
	}
	if len(loras) > 0 {
		params["loras"] = loras
	}
	return params
}

func setIfPresent(params map[string]any, key string, value any) {
	if value != nil {
		params[key] = value
	}
}

// PromptText flattens the most useful searchable text out of an extracted
// metadata document: positive and negative prompts plus tags.
func PromptText(meta map[string]any) string {
	var parts []string
	if sp, ok := meta["structured_prompts"].(map[string]any); ok {
		if s, ok := sp["positive"].(string); ok && s != "" {
			parts = append(parts, s)
		}
		if s, ok := sp["negative"].(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	if tags, ok := meta["tags"].([]string); ok {
		parts = append(parts, tags...)
	}
	if len(parts) == 0 {
		if p, ok := meta["prompt"].(string); ok {
			parts = append(parts, p)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
