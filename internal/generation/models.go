package generation

// Model describes a selectable upstream model.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// ImageModels is the catalog of image models the upstream accepts.
var ImageModels = []Model{
	{ID: "flux", Name: "FLUX.1 Base", Description: "High-quality general purpose image generation", Type: "text-to-image"},
	{ID: "flux-dev", Name: "FLUX.1 Dev", Description: "Development version with enhanced features", Type: "text-to-image"},
	{ID: "flux-schnell", Name: "FLUX.1 Schnell", Description: "Fastest generation for quick prototyping", Type: "text-to-image"},
	{ID: "flux-pro", Name: "FLUX.1 Pro", Description: "Professional quality with premium features", Type: "text-to-image"},
	{ID: "flux-realism", Name: "FLUX Realism", Description: "Specialized for photorealistic images", Type: "text-to-image"},
	{ID: "flux-anime", Name: "FLUX Anime", Description: "Optimized for anime and manga style images", Type: "text-to-image"},
	{ID: "kontext", Name: "Kontext", Description: "Context-aware image generation", Type: "text-to-image"},
	{ID: "stable-diffusion", Name: "Stable Diffusion", Description: "Classic stable diffusion model", Type: "text-to-image"},
	{ID: "stable-diffusion-xl", Name: "Stable Diffusion XL", Description: "High resolution stable diffusion variant", Type: "text-to-image"},
}

// TextModels is the catalog of text models the upstream accepts.
var TextModels = []Model{
	{ID: "openai", Name: "OpenAI GPT", Description: "High-quality text generation", Type: "text-generation"},
	{ID: "mistral", Name: "Mistral", Description: "Fast and efficient text generation", Type: "text-generation"},
	{ID: "llama", Name: "LLaMA", Description: "Open-source language model", Type: "text-generation"},
}
