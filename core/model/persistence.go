package model

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/tabtrain/tabtrain/pkg/errors"
)

// FormatVersion is written ahead of every saved model. Files with another
// version are rejected on load.
const FormatVersion = 1

// header precedes the gob encoded model.
type header struct {
	Version int
	Type    string
}

func typeName(v interface{}) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "<nil>"
	}
	return t.PkgPath() + "." + t.Name()
}

// SaveModel gob-encodes model into filename. Concrete types stored behind
// interfaces must be registered with gob.Register first.
//
//	err := model.SaveModel(artifact, "model.gob")
func SaveModel(model interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create model file")
	}
	if err := SaveModelToWriter(model, file); err != nil {
		_ = file.Close()
		return err
	}
	return errors.Wrap(file.Close(), "failed to close model file")
}

// LoadModel decodes a model written by SaveModel into model, which must be a
// pointer to the same type that was saved.
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "failed to open model file")
	}
	defer file.Close()
	return errors.Wrapf(LoadModelFromReader(model, file), "load %s", filename)
}

// SaveModelToWriter writes a header naming the model type followed by the
// gob encoded model.
func SaveModelToWriter(model interface{}, w io.Writer) error {
	enc := gob.NewEncoder(w)
	if err := enc.Encode(header{Version: FormatVersion, Type: typeName(model)}); err != nil {
		return errors.Wrap(err, "failed to encode model header")
	}
	if err := enc.Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader reads a model written by SaveModelToWriter. A
// version or type mismatch is a ValueError.
func LoadModelFromReader(model interface{}, r io.Reader) error {
	dec := gob.NewDecoder(r)
	var h header
	if err := dec.Decode(&h); err != nil {
		return errors.Wrap(err, "failed to decode model header")
	}
	if h.Version != FormatVersion {
		return errors.NewValueError("LoadModel", fmt.Sprintf("unsupported format version %d, want %d", h.Version, FormatVersion))
	}
	if want := typeName(model); h.Type != want {
		return errors.NewValueError("LoadModel", fmt.Sprintf("file holds %s, not %s", h.Type, want))
	}
	if err := dec.Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
