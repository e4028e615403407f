package services

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"datapipe/internal/config"
	"datapipe/internal/models"
	"datapipe/internal/pipeline"
)

// ToolTypeAPIEndpoint marks tools that call an HTTP endpoint of this service
const ToolTypeAPIEndpoint = "api_endpoint"

// builtinTools expose the ingest and object lookup endpoints to every agent
var builtinTools = []models.ToolDefinition{
	{
		Name:         "input_data",
		EndpointPath: "/input_data",
		Method:       "POST",
		Description: `Process and store input data.
Required parameters:
- created_object_name: Name for the object to store data in
- input_data: List of data items to process
- data_type: Type of data ('strings', 'files', or 'urls')

Example usage: {"created_object_name": "my_dataset", "input_data": ["hello world", "test data"], "data_type": "strings"}`,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"created_object_name": map[string]any{"type": "string"},
				"input_data":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"data_type":           map[string]any{"type": "string", "enum": []string{"strings", "files", "urls"}},
			},
			"required": []string{"created_object_name", "input_data", "data_type"},
		},
	},
	{
		Name:         "object_by_name",
		EndpointPath: "/objects/{object_name}",
		Method:       "GET",
		Description:  "Gets an object by name.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"object_name": map[string]any{"type": "string"},
			},
			"required": []string{"object_name"},
		},
	},
}

// ToolRegistry holds the HTTP endpoint tools agents may call.
// Built-in tools come first, then tools loaded from the tools file, then tools registered at runtime.
type ToolRegistry struct {
	mu         sync.RWMutex
	builtin    []models.ToolDefinition
	fromFile   []models.ToolDefinition
	registered []models.ToolDefinition
}

// NewToolRegistry creates a registry holding the built-in tools
func NewToolRegistry() *ToolRegistry {
	r := &ToolRegistry{}
	for _, tool := range builtinTools {
		tool.Type = ToolTypeAPIEndpoint
		r.builtin = append(r.builtin, tool)
	}
	return r
}

// ToolName derives a tool name from method and path, e.g. POST /research-topic -> post_research_topic
func ToolName(method, endpointPath string) string {
	path := strings.Trim(endpointPath, "/")
	path = strings.NewReplacer("/", "_", "-", "_").Replace(path)
	return strings.ToLower(method) + "_" + path
}

// Register adds or replaces a runtime tool and returns its normalized definition
func (r *ToolRegistry) Register(req models.RegisterToolRequest) (models.ToolDefinition, error) {
	var missing []string
	if req.EndpointPath == "" {
		missing = append(missing, "endpoint_path")
	}
	if req.Method == "" {
		missing = append(missing, "method")
	}
	if req.Description == "" {
		missing = append(missing, "description")
	}
	if len(missing) > 0 {
		return models.ToolDefinition{}, pipeline.Validation("Missing required fields: [%s]", strings.Join(missing, ", "))
	}

	tool := normalizeTool(models.ToolDefinition{
		Name:         req.ToolName,
		Description:  req.Description,
		EndpointPath: req.EndpointPath,
		Method:       req.Method,
		Parameters:   req.Parameters,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = replaceOrAppend(r.registered, tool)

	log.Printf("🔧 [TOOLS] Registered tool %s (%s %s)", tool.Name, tool.Method, tool.EndpointPath)
	return tool, nil
}

// SetFileTools replaces the set of tools loaded from the tools file
func (r *ToolRegistry) SetFileTools(tools []models.ToolDefinition) {
	normalized := make([]models.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		normalized = replaceOrAppend(normalized, normalizeTool(tool))
	}

	r.mu.Lock()
	r.fromFile = normalized
	r.mu.Unlock()
}

// List returns every tool; a later definition hides an earlier one with the same name
func (r *ToolRegistry) List() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []models.ToolDefinition
	for _, group := range [][]models.ToolDefinition{r.builtin, r.fromFile, r.registered} {
		for _, tool := range group {
			all = replaceOrAppend(all, tool)
		}
	}
	return all
}

// Get looks a tool up by name
func (r *ToolRegistry) Get(name string) (models.ToolDefinition, bool) {
	for _, tool := range r.List() {
		if tool.Name == name {
			return tool, true
		}
	}
	return models.ToolDefinition{}, false
}

// Specs returns the tools in OpenAI function-calling format
func (r *ToolRegistry) Specs() []ToolSpec {
	tools := r.List()
	specs := make([]ToolSpec, 0, len(tools))
	for _, tool := range tools {
		params := tool.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		specs = append(specs, ToolSpec{
			Type: "function",
			Function: FunctionSpec{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return specs
}

// LoadFile loads the tools file into the registry
func (r *ToolRegistry) LoadFile(filePath string) error {
	tools, err := config.LoadTools(filePath)
	if err != nil {
		return err
	}
	r.SetFileTools(tools)
	log.Printf("✅ [TOOLS] Loaded %d tools from %s", len(tools), filePath)
	return nil
}

// WatchFile reloads the tools file whenever it changes, until stop is closed
func (r *ToolRegistry) WatchFile(filePath string, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to get absolute path for %s: %w", filePath, err)
	}

	// editors replace files on save, so the directory is watched rather than the file
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	filename := filepath.Base(absPath)

	log.Printf("👁️  [TOOLS] Watching %s for changes", filePath)

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		for {
			select {
			case <-stop:
				if debounce != nil {
					debounce.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filename {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.LoadFile(absPath); err != nil {
						log.Printf("❌ [TOOLS] Failed to reload %s: %v", filePath, err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️  [TOOLS] File watcher error: %v", err)
			}
		}
	}()

	return nil
}

func normalizeTool(tool models.ToolDefinition) models.ToolDefinition {
	tool.Method = strings.ToUpper(tool.Method)
	if !strings.HasPrefix(tool.EndpointPath, "/") {
		tool.EndpointPath = "/" + tool.EndpointPath
	}
	if tool.Name == "" {
		tool.Name = ToolName(tool.Method, tool.EndpointPath)
	}
	tool.Type = ToolTypeAPIEndpoint
	return tool
}

func replaceOrAppend(tools []models.ToolDefinition, tool models.ToolDefinition) []models.ToolDefinition {
	for i := range tools {
		if tools[i].Name == tool.Name {
			tools[i] = tool
			return tools
		}
	}
	return append(tools, tool)
}
