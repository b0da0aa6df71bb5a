// Package format defines the writer contract shared by all image container
// backends: capability queries, tile-size negotiation, series/plane
// addressing, metadata binding, and validated plane writes.
//
// # Session Model
//
// A writer session moves through a linear lifecycle:
//
//	Unbound -> Bound -> Configured -> Writing -> Closed
//
// Binding a metadata provider (SetMetadataRetrieve) moves the session to
// Bound and enables cursor, configuration, and output operations. Explicitly
// setting compression, interleaving, the frame rate, or a tile size moves it
// to Configured. The first successful plane write moves it to Writing, after
// which configuration is fixed for the session. Close is terminal.
//
// # Capability Queries
//
// Each backend publishes a static Capabilities table: which pixel types it
// accepts under which compression identifiers, which lookup-table types it
// stores, its candidate tile extents, and whether it can hold plane stacks.
// Queries are pure: repeated calls agree, and unknown compression
// identifiers yield empty results rather than errors.
//
// # Addressing and Writes
//
// The cursor addresses one series at a time; switching series resets the
// plane cursor to zero because plane counts differ per series. Plane writes
// name their target plane explicitly and are validated synchronously: plane
// bounds, region bounds, pixel-type support under the effective compression,
// and an exact byte-size requirement
//
//	width * height * bytesPerSample * rgbChannelCount
//
// must all hold before a single byte reaches the backend. Partial writes do
// not occur.
//
// # Backends
//
// Backends embed *Base and implement the Backend hook interface. Base
// performs every contract check and delegates raw encoding, so a backend
// only deals in validated geometry.
//
// # Basic Usage
//
//	w := mtile.NewWriter()
//	if err := w.SetMetadataRetrieve(store); err != nil { ... }
//	if err := w.SetCompression("zstd"); err != nil { ... }
//	if err := w.Open("dataset.mtile"); err != nil { ... }
//	if err := w.SaveBytes(0, plane); err != nil { ... }
//	if err := w.Close(); err != nil { ... }
//
// A session is owned by one goroutine; Writer implementations perform no
// internal locking. Capability and codec registries are safe for concurrent
// use.
package format
