package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tshop/admin/internal/backend"
	"github.com/tshop/admin/internal/config"
	"github.com/tshop/admin/internal/definition"
	"github.com/tshop/admin/internal/observability"
	"github.com/tshop/admin/internal/openapi"
)

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check configuration, screen definitions and the REST contract",
		Long: `validate loads the configuration and every screen definition, checks the
definitions against the configured OpenAPI documents, and verifies that
each screen is bound to a configured service. Nothing is served.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			logger, err := observability.NewLogger(cfg.Observability)
			if err != nil {
				return fmt.Errorf("logger error: %w", err)
			}
			defer logger.Sync()

			screens, err := loadScreens(cfg, logger, nil)
			if err != nil {
				return err
			}
			if err := checkServices(screens.registry, backend.NewRegistry(cfg.Services)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d screens, checksum %s\n",
				screens.registry.ScreenCount(), screens.registry.Checksum())
			return nil
		},
	}
}

// loadedScreens is the validated definition set and, when configured, the
// OpenAPI index it was checked against.
type loadedScreens struct {
	registry *definition.Registry
	index    *openapi.Index
	sources  []openapi.SpecSource
}

func (s loadedScreens) openAPILoaded() bool {
	for _, src := range s.sources {
		if s.index.Len(src.ServiceID) == 0 {
			return false
		}
	}
	return true
}

// loadScreens loads every screen definition and validates it. The REST
// contract is only checked when OpenAPI documents are configured.
func loadScreens(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (loadedScreens, error) {
	out := loadedScreens{sources: buildSpecSources(cfg.Specs)}
	if len(out.sources) > 0 {
		out.index = openapi.NewIndex()
		if err := out.index.Load(out.sources); err != nil {
			logger.Error("OpenAPI index load failed", zap.Error(err))
			return out, err
		}
		for _, s := range out.sources {
			metrics.SetOpenAPIOperationsIndexed(s.ServiceID, float64(out.index.Len(s.ServiceID)))
		}
	}

	defs, err := definition.NewLoader().LoadAll(cfg.Definitions.Directories)
	if err != nil {
		metrics.RecordDefinitionReload("failure")
		logger.Error("definition loading failed", zap.Error(err))
		return out, err
	}

	if verrs := definition.NewValidator().Validate(defs, out.index); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("definition validation error", zap.String("error", ve.Error()))
		}
		metrics.RecordDefinitionReload("failure")
		logger.Error("definition validation failed", zap.Int("errors", len(verrs)))
		return out, fmt.Errorf("definition validation failed with %d errors", len(verrs))
	}

	out.registry = definition.NewRegistry(defs)
	metrics.RecordDefinitionReload("success")
	metrics.SetDefinitionsLoaded(float64(out.registry.ScreenCount()))
	return out, nil
}

// checkServices fails when a screen names a service with no configuration.
func checkServices(registry *definition.Registry, backends *backend.Registry) error {
	var errs []error
	for _, sc := range registry.AllScreens() {
		if _, err := backends.Client(sc.ServiceID, sc.BasePath); err != nil {
			errs = append(errs, fmt.Errorf("screen %s: %w", sc.ID, err))
		}
	}
	return errors.Join(errs...)
}

// buildSpecSources converts config spec sources to openapi.SpecSource.
func buildSpecSources(specsCfg config.SpecsConfig) []openapi.SpecSource {
	sources := make([]openapi.SpecSource, len(specsCfg.Sources))
	for i, s := range specsCfg.Sources {
		specPath := s.SpecFile
		if specsCfg.Directory != "" && !filepath.IsAbs(specPath) {
			specPath = filepath.Join(specsCfg.Directory, specPath)
		}
		sources[i] = openapi.SpecSource{
			ServiceID: s.ServiceID,
			SpecPath:  specPath,
		}
	}
	return sources
}
