package artifactrunner

import "context"

// featureCode namespaces the template-cache keys in the feature-config
// store, mirroring the original runner's "template_cache" feature bucket.
const featureCode = "template_cache"

// cacheStore is the subset of store.FeatureConfigStore the template cache
// needs; defined locally so this package doesn't import store directly.
type cacheStore interface {
	Get(ctx context.Context, featureCode, key string) (string, bool, error)
	SetPair(ctx context.Context, featureCode string, kv map[string]string) error
}

type templateCache struct {
	FilesHash string
	DepsHash  string
}

func loadTemplateCache(ctx context.Context, store cacheStore, kind string) (templateCache, bool, error) {
	filesHash, ok, err := store.Get(ctx, featureCode, kind+"_files_hash")
	if err != nil {
		return templateCache{}, false, err
	}
	if !ok {
		return templateCache{}, false, nil
	}
	depsHash, _, err := store.Get(ctx, featureCode, kind+"_deps_hash")
	if err != nil {
		return templateCache{}, false, err
	}
	return templateCache{FilesHash: filesHash, DepsHash: depsHash}, true, nil
}

func saveTemplateCache(ctx context.Context, store cacheStore, kind string, cache templateCache) error {
	return store.SetPair(ctx, featureCode, map[string]string{
		kind + "_files_hash": cache.FilesHash,
		kind + "_deps_hash":  cache.DepsHash,
	})
}
