package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := map[string]string{
		"Hello World":               "hello-world",
		"  Ciência & Tecnologia  ":  "ciencia-tecnologia",
		"Episódio 12: Año Nuevo!!":  "episodio-12-ano-nuevo",
		"already-a-slug":            "already-a-slug",
		"---":                       "",
		"":                          "",
		"Crème Brûlée -- Part II":   "creme-brulee-part-ii",
	}
	for in, want := range tests {
		assert.Equal(t, want, Make(in), in)
	}
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, "custom", OrDefault("Custom", "Some Title"))
	assert.Equal(t, "some-title", OrDefault("", "Some Title"))
	assert.Equal(t, "some-title", OrDefault("!!!", "Some Title"))
}
