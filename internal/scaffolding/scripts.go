package scaffolding

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	bwerrors "github.com/conneroisu/buildwp/internal/errors"
)

// Script is one package.json script entry.
type Script struct {
	Name    string
	Command string
}

// Scripts are the entries InjectScripts sets, in insertion order.
var Scripts = []Script{
	{"dev", "buildwp dev"},
	{"dev:local", "buildwp dev --dest=local"},
	{"prod", "buildwp prod"},
	{"prod:local", "buildwp prod --dest=local"},
	{"release", "buildwp release"},
}

// InjectScripts sets Scripts in the manifest at path. Existing scripts with
// the same names are replaced in place; every other key keeps its value and
// position.
func InjectScripts(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		code := bwerrors.ErrCodeManifestInvalid
		if errors.Is(err, fs.ErrNotExist) {
			code = bwerrors.ErrCodeManifestMissing
		}
		return bwerrors.WrapIO(err, code, "read manifest").WithPath(path)
	}

	out, err := injectScripts(data)
	if err != nil {
		return bwerrors.NewValidationError(bwerrors.ErrCodeManifestInvalid, err.Error()).WithPath(path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return bwerrors.WrapIO(err, bwerrors.ErrCodeManifestInvalid, "stat manifest").WithPath(path)
	}
	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return bwerrors.WrapIO(err, bwerrors.ErrCodeScaffoldFailed, "write manifest").WithPath(path)
	}
	return nil
}

func injectScripts(data []byte) ([]byte, error) {
	manifest, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	scripts := newObject()
	if raw, ok := manifest.values["scripts"]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		scripts, err = decodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("scripts: %w", err)
		}
	}
	for _, s := range Scripts {
		value, err := marshalString(s.Command)
		if err != nil {
			return nil, err
		}
		scripts.set(s.Name, value)
	}

	encoded, err := scripts.encode()
	if err != nil {
		return nil, err
	}
	manifest.set("scripts", encoded)

	compact, err := manifest.encode()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// object is a JSON object that remembers key order.
type object struct {
	keys   []string
	values map[string]json.RawMessage
}

func newObject() *object {
	return &object{values: map[string]json.RawMessage{}}
}

func decodeObject(data []byte) (*object, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected an object, found %v", tok)
	}

	obj := newObject()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected a key, found %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		obj.set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("unexpected data after the object")
	}
	return obj, nil
}

func (o *object) set(key string, value json.RawMessage) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o *object) encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := marshalString(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(o.values[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalString encodes s without HTML escaping so commands like
// "a && b" survive unchanged.
func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
