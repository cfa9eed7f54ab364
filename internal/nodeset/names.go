package nodeset

import (
	"github.com/awcullen/opcua/ua"

	"github.com/amine-amaach/simulators/mtConnectOPCUA/internal/addressspace"
)

// builtinNames are the namespace 0 nodes a model may refer to by name.
var builtinNames = map[string]ua.NodeID{
	"BaseObjectType":       addressspace.BaseObjectType,
	"FolderType":           addressspace.FolderType,
	"BaseVariableType":     addressspace.BaseVariableType,
	"BaseDataVariableType": addressspace.BaseDataVariableType,
	"PropertyType":         addressspace.PropertyType,

	"HasComponent": ua.ReferenceTypeIDHasComponent,
	"HasProperty":  ua.ReferenceTypeIDHasProperty,
	"Organizes":    ua.ReferenceTypeIDOrganizes,

	"Boolean":        ua.DataTypeIDBoolean,
	"SByte":          ua.DataTypeIDSByte,
	"Byte":           ua.DataTypeIDByte,
	"Int16":          ua.DataTypeIDInt16,
	"UInt16":         ua.DataTypeIDUInt16,
	"Int32":          ua.DataTypeIDInt32,
	"UInt32":         ua.DataTypeIDUInt32,
	"Int64":          ua.DataTypeIDInt64,
	"UInt64":         ua.DataTypeIDUInt64,
	"Float":          ua.DataTypeIDFloat,
	"Double":         ua.DataTypeIDDouble,
	"String":         ua.DataTypeIDString,
	"DateTime":       ua.DataTypeIDDateTime,
	"Guid":           ua.DataTypeIDGUID,
	"ByteString":     ua.DataTypeIDByteString,
	"XmlElement":     ua.DataTypeIDXMLElement,
	"NodeId":         ua.DataTypeIDNodeID,
	"ExpandedNodeId": ua.DataTypeIDExpandedNodeID,
	"StatusCode":     ua.DataTypeIDStatusCode,
	"QualifiedName":  ua.DataTypeIDQualifiedName,
	"LocalizedText":  ua.DataTypeIDLocalizedText,
	"Duration":       ua.DataTypeIDDuration,
	"Enumeration":    ua.DataTypeIDEnumeration,
	"Number":         ua.DataTypeIDNumber,
	"Integer":        ua.DataTypeIDInteger,
	"UInteger":       ua.DataTypeIDUInteger,
	"Structure":      ua.DataTypeIDStructure,
	"BaseDataType":   ua.DataTypeIDBaseDataType,
}

var builtinClasses = map[ua.NodeID]ua.NodeClass{
	addressspace.BaseObjectType:       ua.NodeClassObjectType,
	addressspace.FolderType:           ua.NodeClassObjectType,
	addressspace.BaseVariableType:     ua.NodeClassVariableType,
	addressspace.BaseDataVariableType: ua.NodeClassVariableType,
	addressspace.PropertyType:         ua.NodeClassVariableType,
}
