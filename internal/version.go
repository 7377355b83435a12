package internal

// Version is the current version of roomtalk
// This should be updated with each release
const Version = "0.3.0"

// UserAgent identifies the client to the HTTP API.
const UserAgent = "roomtalk/" + Version
