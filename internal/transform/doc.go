// Package transform defines the contract between the engine and transform
// plugins, and ships the RUT field transformer.
//
// The engine talks to a plugin through a Client, which is either in-process
// (InProcessClient) or remote over gRPC (GRPCClient). Plugins implement
// Transformer and are exposed with RegisterServer.
package transform
