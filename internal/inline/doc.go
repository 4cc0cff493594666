/*
Package inline turns an HTML document into a self-contained one.

Three sequential phases run over the document:

 1. Stylesheets: <link ... href="x.css" .../> becomes <style ...>CSS</style>.
    Images referenced by the stylesheet are inlined first, relative to the
    stylesheet's own directory.
 2. Scripts: an empty <script src="x"></script> pair with a relative src
    becomes <script>JS</script>.
 3. Images: url(x) without a scheme becomes url("data:image/<ext>;base64,...").

Each phase rescans the buffer produced by the previous one, so url(...)
notations brought in with a stylesheet are seen by the image phase. Within a
phase every distinct target is fetched concurrently, then all edits are
applied in one pass against the offsets recorded by the scan.
*/
package inline
