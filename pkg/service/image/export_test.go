package image

var FitWithin = fitWithin
