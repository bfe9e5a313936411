package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedMessage marks an inbound frame that cannot be interpreted.
var ErrMalformedMessage = errors.New("malformed message")

//go:embed update_voxel.schema.json
var updateVoxelSchemaJSON []byte

const updateVoxelSchemaURL = "mem://schemas/update_voxel.schema.json"

var updateVoxelSchema = mustCompile(updateVoxelSchemaURL, updateVoxelSchemaJSON)

func mustCompile(url string, doc []byte) *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		panic(fmt.Sprintf("protocol: adding schema %s: %v", url, err))
	}
	return c.MustCompile(url)
}

// EditRequest is a validated client edit.
type EditRequest struct {
	Pos       [3]int
	BlockType int
}

// X returns the x coordinate.
func (e EditRequest) X() int { return e.Pos[0] }

// Y returns the y coordinate.
func (e EditRequest) Y() int { return e.Pos[1] }

// Z returns the z coordinate.
func (e EditRequest) Z() int { return e.Pos[2] }

// DecodeEditRequest validates an inbound frame. update_voxel is the only kind
// clients may send.
//
// Postcondition: Returns an error wrapping ErrMalformedMessage when data is
// not JSON, has another type, or lacks integer pos[3] and a non-negative
// integer blockType.
func DecodeEditRequest(data []byte) (EditRequest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return EditRequest{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := updateVoxelSchema.Validate(doc); err != nil {
		return EditRequest{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var raw struct {
		Payload struct {
			Pos       [3]int `json:"pos"`
			BlockType int    `json:"blockType"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return EditRequest{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return EditRequest{Pos: raw.Payload.Pos, BlockType: raw.Payload.BlockType}, nil
}
