package pipeline

import (
	"encoding/gob"
	"io"

	"github.com/tabtrain/tabtrain/core/model"
	"github.com/tabtrain/tabtrain/pkg/errors"
	"github.com/tabtrain/tabtrain/sklearn/ensemble"
	"github.com/tabtrain/tabtrain/sklearn/linear_model"
	"github.com/tabtrain/tabtrain/sklearn/neighbors"
	"github.com/tabtrain/tabtrain/sklearn/svm"
	"github.com/tabtrain/tabtrain/sklearn/tree"
)

func init() {
	gob.Register(&ensemble.RandomForestClassifier{})
	gob.Register(&ensemble.RandomForestRegressor{})
	gob.Register(&ensemble.GradientBoostingClassifier{})
	gob.Register(&ensemble.GradientBoostingRegressor{})
	gob.Register(&linear_model.LinearRegression{})
	gob.Register(&linear_model.LogisticRegression{})
	gob.Register(&svm.SVC{})
	gob.Register(&svm.SVR{})
	gob.Register(&neighbors.KNeighborsClassifier{})
	gob.Register(&neighbors.KNeighborsRegressor{})
	gob.Register(&tree.DecisionTreeClassifier{})
	gob.Register(&tree.DecisionTreeRegressor{})
}

// SaveArtifact writes a fitted pipeline to w.
func SaveArtifact(w io.Writer, p *Pipeline) error {
	if p == nil || p.Model == nil || !p.Preprocessor.IsFitted() {
		return errors.NewNotFittedError("Pipeline", "SaveArtifact")
	}
	return model.SaveModelToWriter(p, w)
}

// LoadArtifact reads a pipeline written by SaveArtifact.
func LoadArtifact(r io.Reader) (*Pipeline, error) {
	p := &Pipeline{}
	if err := model.LoadModelFromReader(p, r); err != nil {
		return nil, err
	}
	return p, nil
}

// SaveArtifactFile writes a fitted pipeline to filename.
func SaveArtifactFile(filename string, p *Pipeline) error {
	if p == nil || p.Model == nil || !p.Preprocessor.IsFitted() {
		return errors.NewNotFittedError("Pipeline", "SaveArtifactFile")
	}
	return model.SaveModel(p, filename)
}

// LoadArtifactFile reads a pipeline written by SaveArtifactFile.
func LoadArtifactFile(filename string) (*Pipeline, error) {
	p := &Pipeline{}
	if err := model.LoadModel(p, filename); err != nil {
		return nil, err
	}
	return p, nil
}
