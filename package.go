// Comfymcp exposes a ComfyUI workflow as an image generation tool for agents.
// A workflow template in ComfyUI's API format is analysed once to find the
// nodes that carry the prompt, seed, size and sampler settings. Each request
// is then bound into a private copy of the template, submitted to ComfyUI and
// followed over its websocket until the images are ready.
//
// The graphapi package holds the workflow model, role resolution and binding,
// client talks to ComfyUI, and tool publishes everything over MCP.
package comfymcp
