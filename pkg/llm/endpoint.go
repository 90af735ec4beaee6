package llm

// Provider names accepted in endpoint configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// EndpointConfig describes one model endpoint. BaseURL selects an
// OpenAI-compatible server for the openai provider and the host URL for
// ollama; it is ignored for anthropic.
type EndpointConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}
