// Package demux splits an FLV tag stream into elementary stream files.
//
// The central type is [Demuxer]. It pulls tags from an [flv.Reader], picks
// one [mux.Writer] per media kind from the codec of the first tag of that
// kind, and routes every later payload of the kind to it. When the stream
// ends it finalizes the writers and derives two frame rate estimates from
// the recorded video timestamps: [AverageFrameRate] and [TrueFrameRate].
//
// Unsupported codecs are not fatal. They produce a warning in the [Result]
// and a no-op writer, so the other media kind still extracts. Codec parse
// failures and context cancellation abort the run, and every output file
// created so far is removed.
package demux
