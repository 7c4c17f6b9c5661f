// Package shptree is a quadtree over shape bounding boxes, kept in memory
// or streamed from a .qix file.
//
// Build a tree from an open shapefile and query it:
//
//	h, err := shp.Open("roads.shp", shp.ReadOnly)
//	...
//	tree, err := shptree.Build(h, shptree.DefaultOptions())
//	ids := tree.FindLikelyShapes([4]float64{x0, y0}, [4]float64{x1, y1})
//
// Results are candidates: every shape whose bounds overlap the query is
// returned, along with shapes stored in overlapping nodes. Re-test the
// candidates against their geometry when exact answers are needed.
//
// [Tree.WriteQIX] saves the tree; [OpenDiskTree] searches a saved tree
// without loading it and returns the same candidates as the in-memory
// search.
package shptree
