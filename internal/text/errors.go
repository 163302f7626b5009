package text

import "github.com/rotisserie/eris"

// ErrExtraction marks an HTML-to-text failure not covered by the fallback
// extractor. It is fatal for the affected document only; batch extraction
// continues with the remaining documents.
var ErrExtraction = eris.New("text extraction failed")

// ErrInvariant marks an internal classification invariant violation, such as
// an aspirational count exceeding the environmental count. It signals a
// logic defect rather than bad input data and is never retried.
var ErrInvariant = eris.New("classification invariant violated")
