package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"innerchat/models"
	"innerchat/routing"
)

// Config is the merged content of models.yaml, deployments.yaml and routing.yaml.
type Config struct {
	Models      map[string]ModelConfig      `yaml:"models"`
	Deployments map[string]DeploymentConfig `yaml:"deployments"`
	Routing     RoutingConfig               `yaml:"routing"`
}

type ModelConfig struct {
	Name         string                   `yaml:"name"`
	Family       string                   `yaml:"family"`
	Version      string                   `yaml:"version"`
	Capabilities models.ModelCapabilities `yaml:"capabilities"`
	Deployments  []string                 `yaml:"deployments"`
	Tags         map[string]string        `yaml:"tags"`
}

type DeploymentConfig struct {
	ModelID         string            `yaml:"model_id"`
	Provider        string            `yaml:"provider"`
	ProviderModelID string            `yaml:"provider_model_id"`
	Priority        int               `yaml:"priority"`
	Weight          int               `yaml:"weight"`
	Endpoint        EndpointConfig    `yaml:"endpoint"`
	Tags            map[string]string `yaml:"tags"`
}

type EndpointConfig struct {
	BaseURL       string            `yaml:"base_url"`
	Timeout       string            `yaml:"timeout"`
	MaxRetries    int               `yaml:"max_retries"`
	Auth          AuthConfig        `yaml:"auth"`
	CustomHeaders map[string]string `yaml:"custom_headers,omitempty"`
}

// AuthConfig names the environment variable that holds the key; keys never
// live in the YAML files.
type AuthConfig struct {
	Type   string `yaml:"type"`
	KeyEnv string `yaml:"key_env"`
}

type RoutingConfig struct {
	Strategy    string            `yaml:"strategy"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
	Fallback    FallbackConfig    `yaml:"fallback"`
}

type HealthCheckConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Interval       string `yaml:"interval"`
	Timeout        string `yaml:"timeout"`
	CheckOnStartup bool   `yaml:"check_on_startup"`
}

type FallbackConfig struct {
	Enabled      bool `yaml:"enabled"`
	MaxFallbacks int  `yaml:"max_fallbacks"`
}

// LoadConfig reads the three YAML files from configDir.
func LoadConfig(configDir string) (*Config, error) {
	var modelsFile struct {
		Models map[string]ModelConfig `yaml:"models"`
	}
	if err := loadYAMLFile(filepath.Join(configDir, "models.yaml"), &modelsFile); err != nil {
		return nil, fmt.Errorf("failed to load models.yaml: %w", err)
	}

	var deploymentsFile struct {
		Deployments map[string]DeploymentConfig `yaml:"deployments"`
	}
	if err := loadYAMLFile(filepath.Join(configDir, "deployments.yaml"), &deploymentsFile); err != nil {
		return nil, fmt.Errorf("failed to load deployments.yaml: %w", err)
	}

	var routingFile struct {
		Routing RoutingConfig `yaml:"routing"`
	}
	if err := loadYAMLFile(filepath.Join(configDir, "routing.yaml"), &routingFile); err != nil {
		return nil, fmt.Errorf("failed to load routing.yaml: %w", err)
	}

	config := &Config{
		Models:      modelsFile.Models,
		Deployments: deploymentsFile.Deployments,
		Routing:     routingFile.Routing,
	}
	if config.Models == nil {
		config.Models = make(map[string]ModelConfig)
	}
	if config.Deployments == nil {
		config.Deployments = make(map[string]DeploymentConfig)
	}

	expandEnvVars(config)

	for id, d := range config.Deployments {
		if _, ok := config.Models[d.ModelID]; !ok {
			return nil, fmt.Errorf("deployment %s references unknown model %q", id, d.ModelID)
		}
	}

	return config, nil
}

func loadYAMLFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}

func expandEnvVars(config *Config) {
	for id, deployment := range config.Deployments {
		deployment.Endpoint.BaseURL = ExpandEnv(deployment.Endpoint.BaseURL)
		deployment.ProviderModelID = ExpandEnv(deployment.ProviderModelID)
		for k, v := range deployment.Endpoint.CustomHeaders {
			deployment.Endpoint.CustomHeaders[k] = ExpandEnv(v)
		}
		config.Deployments[id] = deployment
	}
}

// ExpandEnv expands ${VAR} and ${VAR:-default}.
func ExpandEnv(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":-", 2)
		value := os.Getenv(parts[0])
		if value == "" && len(parts) > 1 {
			return parts[1]
		}
		return value
	})
}

// BuildRouter creates the router and registries from configuration. Providers
// are registered by the caller. The returned health checker is nil when
// health checks are disabled; it is not started.
func BuildRouter(config *Config) (*routing.Router, *models.ModelRegistry, *models.DeploymentRegistry, *routing.HealthChecker, error) {
	router := routing.NewRouter(routing.ParseStrategy(config.Routing.Strategy))
	router.SetFallback(config.Routing.Fallback.Enabled, config.Routing.Fallback.MaxFallbacks)

	modelRegistry := models.NewModelRegistry()
	deploymentRegistry := models.NewDeploymentRegistry()

	for id, modelConfig := range config.Models {
		model := &models.Model{
			ID:           id,
			Name:         modelConfig.Name,
			Family:       modelConfig.Family,
			Version:      modelConfig.Version,
			Capabilities: modelConfig.Capabilities,
			Deployments:  append([]string(nil), modelConfig.Deployments...),
			Tags:         modelConfig.Tags,
			CreatedAt:    time.Now(),
		}
		modelRegistry.Register(model)
		router.RegisterModel(model)
	}

	for id, deploymentConfig := range config.Deployments {
		deployment, err := buildDeployment(id, deploymentConfig)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		deploymentRegistry.Register(deployment)
		router.RegisterDeployment(deployment)
	}

	var healthChecker *routing.HealthChecker
	if config.Routing.HealthCheck.Enabled {
		interval, _ := time.ParseDuration(config.Routing.HealthCheck.Interval)
		timeout, _ := time.ParseDuration(config.Routing.HealthCheck.Timeout)
		if interval == 0 {
			interval = 30 * time.Second
		}
		if timeout == 0 {
			timeout = 5 * time.Second
		}
		healthChecker = routing.NewHealthChecker(router, interval, timeout)
	}

	return router, modelRegistry, deploymentRegistry, healthChecker, nil
}

func buildDeployment(id string, dc DeploymentConfig) (*models.Deployment, error) {
	providerType := models.ProviderType(dc.Provider)
	switch providerType {
	case models.ProviderOpenAI, models.ProviderOneAPI, models.ProviderOpenAISDK:
	case "":
		providerType = models.ProviderOpenAI
	default:
		return nil, fmt.Errorf("deployment %s: unknown provider %q", id, dc.Provider)
	}

	timeout, _ := time.ParseDuration(dc.Endpoint.Timeout)
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	authType := models.AuthAPIKey
	if dc.Endpoint.Auth.Type == string(models.AuthNone) {
		authType = models.AuthNone
	}

	apiKey := ""
	if authType == models.AuthAPIKey {
		keyEnv := dc.Endpoint.Auth.KeyEnv
		if keyEnv == "" {
			keyEnv = "OPENAI_API_KEY"
		}
		apiKey = os.Getenv(keyEnv)
	}

	weight := dc.Weight
	if weight <= 0 {
		weight = 1
	}

	tags := dc.Tags
	if tags == nil {
		tags = make(map[string]string)
	}

	return &models.Deployment{
		ID:              id,
		ModelID:         dc.ModelID,
		Provider:        providerType,
		ProviderModelID: dc.ProviderModelID,
		Priority:        dc.Priority,
		Weight:          weight,
		Endpoint: models.EndpointConfig{
			BaseURL:    dc.Endpoint.BaseURL,
			Timeout:    timeout,
			MaxRetries: dc.Endpoint.MaxRetries,
			Auth: models.AuthConfig{
				Type:   authType,
				APIKey: apiKey,
			},
			CustomHeaders: dc.Endpoint.CustomHeaders,
		},
		Status: models.DeploymentStatus{
			Available: true,
			Healthy:   true,
		},
		Tags:      tags,
		CreatedAt: time.Now(),
	}, nil
}
