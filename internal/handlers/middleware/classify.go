package middleware

import (
	"net/http"
	"strings"
)

type Classification int

const (
	Protected Classification = iota
	Public
)

const authPrefix = "/auth"

// Paths served without authentication when nothing else configured
var DefaultPublicPaths = []string{"/openapi.json", "/docs", "/redoc", "/healthz", "/metrics"}

// Classifier decides whether request needs authentication, looking at path and method only
type Classifier struct {
	public map[string]struct{}
}

// NewClassifier uses DefaultPublicPaths if paths is nil
func NewClassifier(paths []string) Classifier {
	if paths == nil {
		paths = DefaultPublicPaths
	}

	public := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		public[p] = struct{}{}
	}
	return Classifier{public: public}
}

func (c Classifier) Classify(path string, method string) Classification {
	if method == http.MethodOptions {
		return Public
	}
	if _, ok := c.public[path]; ok {
		return Public
	}
	if path == authPrefix || strings.HasPrefix(path, authPrefix+"/") {
		return Public
	}
	return Protected
}
