package divergence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/casampa-lab/sinaliza/internal/model"
)

func TestRecurrentWithoutDeclaredTrustsInference(t *testing.T) {
	for _, at := range []model.AssetType{model.AssetMarcasLongitudinais, model.AssetInscricoes, model.AssetTachas, model.AssetCilindros} {
		out := Evaluate(at, "", model.ServiceSubstituir, true)
		assert.False(t, out.Divergence, at)
		assert.Equal(t, model.ServiceSubstituir, out.Final, at)
	}
}

func TestRecurrentDeclaredDisagreement(t *testing.T) {
	out := Evaluate(model.AssetTachas, "Implantação", model.ServiceSubstituir, true)
	assert.True(t, out.Divergence)
	assert.Equal(t, model.ServiceImplantar, out.Final)
	assert.True(t, out.Recognized)

	agree := Evaluate(model.AssetTachas, "substituir", model.ServiceSubstituir, true)
	assert.False(t, agree.Divergence)
	assert.Equal(t, model.ServiceSubstituir, agree.Final)
}

func TestRecurrentUnrecognizedDeclaredDiverges(t *testing.T) {
	out := Evaluate(model.AssetMarcasLongitudinais, "Repintura parcial", model.ServiceSubstituir, true)
	assert.True(t, out.Divergence)
	assert.False(t, out.Recognized)
	assert.Equal(t, model.Service("Repintura parcial"), out.Final)
}

func TestNonRecurrentMatchAlwaysDiverges(t *testing.T) {
	for _, at := range []model.AssetType{model.AssetPlacas, model.AssetPorticos, model.AssetDefensas} {
		agree := Evaluate(at, "Substituir", model.ServiceSubstituir, true)
		assert.True(t, agree.Divergence, at)
		assert.Equal(t, model.ServiceSubstituir, agree.Final)

		none := Evaluate(at, "", model.ServiceSubstituir, true)
		assert.True(t, none.Divergence, at)
		assert.Equal(t, model.ServiceSubstituir, none.Final)

		differ := Evaluate(at, "Remover", model.ServiceSubstituir, true)
		assert.True(t, differ.Divergence, at)
		assert.Equal(t, model.ServiceRemover, differ.Final)
	}
}

func TestNonRecurrentNoMatchNoDivergence(t *testing.T) {
	out := Evaluate(model.AssetPlacas, "", model.ServiceImplantar, false)
	assert.False(t, out.Divergence)
	assert.Equal(t, model.ServiceImplantar, out.Final)

	declared := Evaluate(model.AssetPlacas, "Implantar", model.ServiceImplantar, false)
	assert.False(t, declared.Divergence)
}

func TestProjectService(t *testing.T) {
	assert.Equal(t, model.ServiceRemover, ProjectService("retirada", model.ServiceSubstituir))
	assert.Equal(t, model.ServiceSubstituir, ProjectService("", model.ServiceSubstituir))
}
