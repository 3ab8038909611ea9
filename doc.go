/*
go-soilfauna extracts instance segmentation annotations of soil fauna
specimens from macro photographs and writes them as COCO datasets.

Each image has its tray background suppressed by color clustering, is split
into a grid of overlapping tiles, and has candidate specimen centers located
per tile from a distance transform.  The centers prompt a segmentation model
whose masks are stitched back into one whole image mask, traced into
contours, validated as simple polygons and recorded as COCO annotations.

This package provides the Segmenter interface the pipeline drives, a SAM
segmenter running ONNX models through OpenCV's DNN module, and a Pool for
sharing segmenters between goroutines.

See example code and usage in the examples subdirectory.
*/
package soilfauna
