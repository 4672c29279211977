package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"innerchat/config"
	"innerchat/models"
	"innerchat/providers"
	"innerchat/routing"
)

// Global router instance (initialized in main)
var (
	modelRouter        *routing.Router
	modelRegistry      *models.ModelRegistry
	deploymentRegistry *models.DeploymentRegistry
	healthChecker      *routing.HealthChecker
)

// InitializeModelRouter builds the router from configDir, or from the
// OPENAI_API_KEY / API_URL / MODEL_NAME environment when configDir is absent.
func InitializeModelRouter(configDir string) {
	log.Println("[InitializeModelRouter] Starting model router initialization...")

	err := initializeFullRouter(configDir)
	if err == nil {
		log.Printf("[InitializeModelRouter] Router initialized from %s", configDir)
	} else {
		log.Printf("[InitializeModelRouter] Config router unavailable: %v", err)

		apiKey := os.Getenv("OPENAI_API_KEY")
		apiURL := envString("API_URL", "https://api.openai.com/v1/chat/completions")
		modelID := envString("MODEL_NAME", "gpt-4o")
		if apiKey == "" {
			log.Println("[InitializeModelRouter] WARNING: OPENAI_API_KEY is not set, every reply will be the fallback text")
		}
		initializeBasicRouter(apiKey, apiURL, modelID)
	}

	validateDeployments()
	logInitSummary()
}

func initializeFullRouter(configDir string) error {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return fmt.Errorf("config directory not found: %s", configDir)
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return err
	}

	router, modelReg, deploymentReg, hc, err := config.BuildRouter(cfg)
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}
	registerProviders(router)

	modelRouter = router
	modelRegistry = modelReg
	deploymentRegistry = deploymentReg
	healthChecker = hc

	if hc != nil {
		if cfg.Routing.HealthCheck.CheckOnStartup {
			hc.Start()
			log.Println("[initializeFullRouter] Started health checker for deployments")
		} else {
			log.Println("[initializeFullRouter] Health checker configured but not started on startup")
		}
	}
	return nil
}

// initializeBasicRouter creates a router with a single baseline deployment.
func initializeBasicRouter(apiKey, apiURL, modelID string) {
	modelReg := models.NewModelRegistry()
	deploymentReg := models.NewDeploymentRegistry()

	model := &models.Model{
		ID:          modelID,
		Name:        modelID,
		Family:      detectModelFamily(modelID),
		Deployments: []string{"basic"},
		CreatedAt:   time.Now(),
	}
	modelReg.Register(model)

	deployment := &models.Deployment{
		ID:              "basic",
		ModelID:         modelID,
		Provider:        models.ProviderOpenAI,
		ProviderModelID: modelID,
		Priority:        1,
		Weight:          100,
		Endpoint: models.EndpointConfig{
			BaseURL: apiURL,
			Timeout: 30 * time.Second,
			Auth: models.AuthConfig{
				Type:   models.AuthAPIKey,
				APIKey: apiKey,
			},
		},
		Status: models.DeploymentStatus{
			Available: true,
			Healthy:   true,
		},
		Tags: map[string]string{
			"mode":   "baseline",
			"source": "env",
		},
		CreatedAt: time.Now(),
	}
	deploymentReg.Register(deployment)

	router := routing.NewRouter(routing.StrategyPriority)
	registerProviders(router)
	router.RegisterModel(model)
	router.RegisterDeployment(deployment)

	modelRouter = router
	modelRegistry = modelReg
	deploymentRegistry = deploymentReg
	healthChecker = nil

	log.Printf("[initializeBasicRouter] Basic router active - Model: %s, URL: %s", modelID, apiURL)
	beacon("router_basic_activated", map[string]interface{}{
		"model": modelID,
		"url":   apiURL,
	})
}

func detectModelFamily(modelID string) string {
	lower := strings.ToLower(modelID)
	switch {
	case strings.Contains(lower, "gpt"):
		return "gpt"
	case strings.Contains(lower, "claude"):
		return "claude"
	case strings.Contains(lower, "gemini"):
		return "gemini"
	case strings.Contains(lower, "llama"):
		return "llama"
	case strings.Contains(lower, "mistral"):
		return "mistral"
	default:
		return "unknown"
	}
}

func registerProviders(router *routing.Router) {
	router.RegisterProvider(models.ProviderOpenAI, providers.NewBaselineOpenAICompatibilityProvider())
	router.RegisterProvider(models.ProviderOneAPI, providers.NewOneAPIProvider())
	router.RegisterProvider(models.ProviderOpenAISDK, providers.NewOpenAISDKProvider())
	log.Println("[registerProviders] Registered openai, oneapi and openai_sdk providers")
}

// validateDeployments logs configuration problems; it never disables a deployment.
func validateDeployments() {
	for _, d := range modelRouter.Snapshot() {
		provider, ok := modelRouter.Provider(d.Provider)
		if !ok {
			log.Printf("[ValidateDeployments] WARNING: %s uses unregistered provider %s", d.ID, d.Provider)
			continue
		}
		dep, _ := deploymentRegistry.Get(d.ID)
		if dep == nil {
			continue
		}
		if err := provider.ValidateConfig(dep); err != nil {
			log.Printf("[ValidateDeployments] WARNING: %s: %v", d.ID, err)
		}
	}
}

func logInitSummary() {
	if modelRegistry == nil || deploymentRegistry == nil {
		return
	}

	allModels := modelRegistry.List()
	log.Printf("[InitSummary] Loaded %d models, %d deployments (strategy: %s)",
		len(allModels), deploymentRegistry.Len(), modelRouter.Strategy())
	for _, model := range allModels {
		log.Printf("[InitSummary] Model: %s (%s) - %d deployments",
			model.ID, model.Name, len(model.Deployments))
	}
}

// GetRouterStatus returns router status information for /health.
func GetRouterStatus() map[string]interface{} {
	status := map[string]interface{}{
		"initialized": modelRouter != nil,
		"healthy":     false,
		"models":      0,
		"deployments": 0,
	}
	if modelRouter == nil {
		return status
	}

	healthy := 0
	for _, d := range modelRouter.Snapshot() {
		if d.Status.Available && d.Status.Healthy {
			healthy++
		}
	}
	status["healthy"] = healthy > 0
	status["models"] = len(modelRegistry.List())
	status["deployments"] = deploymentRegistry.Len()
	status["healthy_deployments"] = healthy
	status["strategy"] = string(modelRouter.Strategy())
	status["health_checks"] = healthChecker != nil
	return status
}
