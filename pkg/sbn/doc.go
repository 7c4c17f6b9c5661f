// Package sbn reads .sbn/.sbx bin indexes written by other GIS software.
//
// The format stores each shape's bounds as bytes on a 256x256 grid scaled
// to the file extent, grouped into bins of up to 100 features attached to
// the nodes of an implicit binary tree. This package only reads it.
package sbn
