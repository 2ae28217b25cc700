package schema

import "github.com/go-openapi/inflect"

// TypeNames are the generated API names of a node type.
type TypeNames struct {
	Object              string // Project
	Input               string // ProjectInput: {EXISTING, NEW}
	QueryInput          string // ProjectQueryInput
	CreateMutationInput string // ProjectCreateMutationInput
	UpdateMutationInput string // ProjectUpdateMutationInput
	UpdateInput         string // ProjectUpdateInput: {MATCH, SET}
	DeleteInput         string // ProjectDeleteInput: {MATCH, DELETE}
	DeleteMutationInput string // ProjectDeleteMutationInput

	ReadEndpoint   string // Project
	CreateEndpoint string // ProjectCreate
	UpdateEndpoint string // ProjectUpdate
	DeleteEndpoint string // ProjectDelete
}

func typeNames(name string) TypeNames {
	return TypeNames{
		Object:              name,
		Input:               name + "Input",
		QueryInput:          name + "QueryInput",
		CreateMutationInput: name + "CreateMutationInput",
		UpdateMutationInput: name + "UpdateMutationInput",
		UpdateInput:         name + "UpdateInput",
		DeleteInput:         name + "DeleteInput",
		DeleteMutationInput: name + "DeleteMutationInput",
		ReadEndpoint:        name,
		CreateEndpoint:      name + "Create",
		UpdateEndpoint:      name + "Update",
		DeleteEndpoint:      name + "Delete",
	}
}

// variants lists every generated name except the object name itself.
func (n TypeNames) variants() []string {
	return []string{
		n.Input, n.QueryInput, n.CreateMutationInput, n.UpdateMutationInput,
		n.UpdateInput, n.DeleteInput, n.DeleteMutationInput,
		n.CreateEndpoint, n.UpdateEndpoint, n.DeleteEndpoint,
	}
}

// RelNames are the generated API names of a relationship. All of them start
// with the relationship full name, the source type followed by the camelized
// relationship name.
type RelNames struct {
	Object                  string // ProjectOwnerRel
	Props                   string // ProjectOwnerProps
	PropsInput              string // ProjectOwnerPropsInput
	PropsQueryInput         string // ProjectOwnerPropsQueryInput
	NodesUnion              string // ProjectOwnerNodesUnion
	NodesMutationInputUnion string // ProjectOwnerNodesMutationInputUnion
	QueryInput              string // ProjectOwnerQueryInput
	SrcQueryInput           string // ProjectOwnerSrcQueryInput
	DstQueryInput           string // ProjectOwnerDstQueryInput
	CreateInput             string // ProjectOwnerCreateInput: {MATCH, CREATE}
	CreateMutationInput     string // ProjectOwnerCreateMutationInput: {props, dst}
	ChangeInput             string // ProjectOwnerChangeInput: {ADD, UPDATE, DELETE}
	UpdateInput             string // ProjectOwnerUpdateInput: {MATCH, SET}
	UpdateMutationInput     string // ProjectOwnerUpdateMutationInput: {props}
	DeleteInput             string // ProjectOwnerDeleteInput: {MATCH}
	DeleteMutationInput     string // ProjectOwnerDeleteMutationInput: {MATCH, DELETE}

	ReadEndpoint   string // ProjectOwner
	CreateEndpoint string // ProjectOwnerCreate
	UpdateEndpoint string // ProjectOwnerUpdate
	DeleteEndpoint string // ProjectOwnerDelete
}

// FullName returns the name of relationship rel declared on type src.
func FullName(src, rel string) string {
	return src + inflect.Camelize(rel)
}

func relNames(full string) RelNames {
	return RelNames{
		Object:                  full + "Rel",
		Props:                   full + "Props",
		PropsInput:              full + "PropsInput",
		PropsQueryInput:         full + "PropsQueryInput",
		NodesUnion:              full + "NodesUnion",
		NodesMutationInputUnion: full + "NodesMutationInputUnion",
		QueryInput:              full + "QueryInput",
		SrcQueryInput:           full + "SrcQueryInput",
		DstQueryInput:           full + "DstQueryInput",
		CreateInput:             full + "CreateInput",
		CreateMutationInput:     full + "CreateMutationInput",
		ChangeInput:             full + "ChangeInput",
		UpdateInput:             full + "UpdateInput",
		UpdateMutationInput:     full + "UpdateMutationInput",
		DeleteInput:             full + "DeleteInput",
		DeleteMutationInput:     full + "DeleteMutationInput",
		ReadEndpoint:            full,
		CreateEndpoint:          full + "Create",
		UpdateEndpoint:          full + "Update",
		DeleteEndpoint:          full + "Delete",
	}
}

func (n RelNames) variants() []string {
	return []string{
		n.Object, n.Props, n.PropsInput, n.PropsQueryInput, n.NodesUnion,
		n.NodesMutationInputUnion, n.QueryInput, n.SrcQueryInput, n.DstQueryInput,
		n.CreateInput, n.CreateMutationInput, n.ChangeInput, n.UpdateInput,
		n.UpdateMutationInput, n.DeleteInput, n.DeleteMutationInput,
		n.ReadEndpoint, n.CreateEndpoint, n.UpdateEndpoint, n.DeleteEndpoint,
	}
}

// ScalarQueryInput returns the comparison input type name of a scalar, e.g.
// StringQueryInput.
func ScalarQueryInput(scalar string) string {
	return scalar + "QueryInput"
}
